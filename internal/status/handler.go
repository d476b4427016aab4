package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	board *Board
}

func NewHandler(board *Board) *Handler {
	return &Handler{board: board}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Health)
	rg.GET("/status", h.Status)
	rg.GET("/status/participants/:id", h.Participant)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Current())
}

func (h *Handler) Participant(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
		return
	}
	for _, p := range h.board.Current().Participants {
		if p.ID == id {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
}

func NewRouter(board *Board) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	NewHandler(board).RegisterRoutes(&r.RouterGroup)
	return r
}

// Server serves the status routes on its own goroutine.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(port int, board *Board) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(board),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: slog.Default(),
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("status_http_listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status_http_failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
