package ticksync

import (
	"log/slog"
	"time"

	"lansync/internal/codec"
	"lansync/internal/session"
)

// Sender is the outbound half of a session.
type Sender interface {
	Send(tag string, payload codec.Payload, reliable bool) error
}

// PlayerSource yields one record per live participant.
type PlayerSource interface {
	PlayerRecords() map[session.ParticipantID]codec.Payload
}

// HazardSource is an environmental system whose state rides along with the
// player snapshot.
type HazardSource interface {
	HazardName() string
	HazardState() codec.Group
}

// OwnSource yields the local participant's record, or false when there is
// nothing to upload.
type OwnSource interface {
	OwnRecord() (codec.Payload, bool)
}

// Host broadcasts one aggregated snapshot for each Step that advances at
// least one tick.
type Host struct {
	sync    *Synchronizer
	sender  Sender
	players PlayerSource
	hazards []HazardSource
	logger  *slog.Logger
}

func NewHost(sync *Synchronizer, sender Sender, players PlayerSource, hazards ...HazardSource) *Host {
	return &Host{
		sync:    sync,
		sender:  sender,
		players: players,
		hazards: hazards,
		logger:  slog.Default(),
	}
}

func (h *Host) WithLogger(logger *slog.Logger) *Host {
	h.logger = logger
	return h
}

// Step advances the clock by dt and returns the ticks it covered.
func (h *Host) Step(dt time.Duration) int {
	n := h.sync.Step(dt)
	if n == 0 {
		return 0
	}
	snap := h.Snapshot()
	payload, err := snap.Payload()
	if err != nil {
		h.logger.Error("snapshot_encode_failed", "tick", snap.Tick, "error", err)
		return n
	}
	if err := h.sender.Send(TagState, payload, false); err != nil {
		h.logger.Error("snapshot_send_failed", "tick", snap.Tick, "error", err)
	}
	return n
}

// Snapshot collects the current state without sending it.
func (h *Host) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:    h.sync.Tick(),
		Players: h.players.PlayerRecords(),
		Hazards: make(map[string]codec.Group, len(h.hazards)),
	}
	for _, hz := range h.hazards {
		snap.Hazards[hz.HazardName()] = hz.HazardState()
	}
	return snap
}

// Client uploads the local record once per Step that advances at least one
// tick.
type Client struct {
	sync   *Synchronizer
	sender Sender
	own    OwnSource
	logger *slog.Logger
}

func NewClient(sync *Synchronizer, sender Sender, own OwnSource) *Client {
	return &Client{sync: sync, sender: sender, own: own, logger: slog.Default()}
}

func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

func (c *Client) Step(dt time.Duration) int {
	n := c.sync.Step(dt)
	if n == 0 {
		return 0
	}
	rec, ok := c.own.OwnRecord()
	if !ok {
		return n
	}
	if err := c.sender.Send(TagClientState, rec, false); err != nil {
		c.logger.Error("upload_send_failed", "error", err)
	}
	return n
}
