package command

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lansync/internal/discovery"
	"lansync/internal/match"
	"lansync/internal/session"
	"lansync/internal/status"
	"lansync/internal/transport"
)

var (
	hostPort       int
	hostCapacity   int
	hostRelayOnly  bool
	hostStatusPort int
	hostAnnounce   bool
)

// hostCmd represents the host command
var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a LAN session",
	Long: `Start a session on the game port and run the match loop.

The host assigns participant ids, relays actions, broadcasts world state at
the tick rate and announces itself on the discovery port. With --relay-only
the host forwards traffic without taking a slot itself.

Press Ctrl+C to stop; connected clients are disconnected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") {
			hostPort = cfg.GamePort
		}
		if !cmd.Flags().Changed("capacity") {
			hostCapacity = cfg.Capacity
		}
		if !cmd.Flags().Changed("relay-only") {
			hostRelayOnly = cfg.RelayOnly
		}
		if !cmd.Flags().Changed("status-port") {
			hostStatusPort = cfg.StatusHTTPPort
		}
		return runHost()
	},
}

func runHost() error {
	s := session.New(session.Config{
		RelayOnly:   hostRelayOnly,
		DefaultPort: cfg.GamePort,
		Transport:   transport.Config{PeerTimeout: cfg.PeerTimeout},
		Logger:      logger,
	})
	if err := s.StartHost(hostPort, hostCapacity); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	defer s.Stop()

	game := match.New(s, match.Config{TickInterval: cfg.TickInterval, Logger: logger})

	sessionID := uuid.NewString()
	address := discovery.HostAddress()
	gamePort := boundPort(s.LocalAddr(), hostPort)
	announce := func() discovery.Announcement {
		return discovery.Announcement{
			SessionID:    sessionID,
			Address:      address,
			GamePort:     gamePort,
			Participants: s.ConnectedCount(),
			Capacity:     s.Capacity(),
			RelayOnly:    s.RelayOnly(),
		}
	}

	var sinks []discovery.Sink
	if cfg.RedisURL != "" {
		registry, err := discovery.NewRedisRegistry(cfg.RedisURL, cfg.DiscoveryTTL)
		if err != nil {
			logger.Warn("redis_registry_unavailable", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := registry.Shutdown(ctx, sessionID); err != nil {
					logger.Warn("registry_shutdown_failed", "error", err)
				}
			}()
			sinks = append(sinks, registry)
		}
	}

	var broadcaster *discovery.Broadcaster
	if hostAnnounce {
		b, err := discovery.NewBroadcaster(discovery.BroadcasterConfig{
			Port:     cfg.DiscoveryPort,
			Interval: cfg.DiscoveryInterval,
			Sinks:    sinks,
			Logger:   logger,
		}, announce)
		if err != nil {
			logger.Warn("discovery_disabled", "error", err)
		} else {
			broadcaster = b
			defer broadcaster.Close()
		}
	}

	board := status.NewBoard()
	if hostStatusPort > 0 {
		if !cfg.IsDevelopment() {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := status.NewServer(hostStatusPort, board)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	color.Green("✓ hosting on %s (capacity %d)", s.LocalAddr(), s.Capacity())
	if s.RelayOnly() {
		fmt.Println("  relay-only: the host does not take a slot")
	}
	fmt.Printf("  clients join with: lansync join %s:%d\n", address, gamePort)
	fmt.Println("Press Ctrl+C to stop.")

	ctx, stop := signalContext()
	defer stop()

	runFrames(ctx, frameInterval(), func(now time.Time, dt time.Duration) bool {
		game.Frame(dt)
		for _, m := range game.Events() {
			printEvent(m)
		}
		if broadcaster != nil {
			broadcaster.Step(now)
		}
		board.Publish(status.FromSession(s, game.Tick(), now))
		return true
	})

	fmt.Println("\nstopping host")
	return nil
}

// boundPort reads the port from a host:port address, for hosts started on
// port 0.
func boundPort(addr string, fallback int) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return fallback
	}
	return n
}

// frameInterval polls the network at least twice per tick.
func frameInterval() time.Duration {
	interval := cfg.TickInterval / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

func init() {
	hostCmd.Flags().IntVar(&hostPort, "port", session.DefaultPort, "game port to listen on (GAME_PORT)")
	hostCmd.Flags().IntVar(&hostCapacity, "capacity", 4, "participants allowed, including the host (CAPACITY)")
	hostCmd.Flags().BoolVar(&hostRelayOnly, "relay-only", false, "forward traffic without taking a slot (RELAY_ONLY)")
	hostCmd.Flags().IntVar(&hostStatusPort, "status-port", 0, "serve /healthz and /status on this port, 0 disables (STATUS_HTTP_PORT)")
	hostCmd.Flags().BoolVar(&hostAnnounce, "announce", true, "broadcast the session on the discovery port")
}
