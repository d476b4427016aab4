package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

var ErrBind = errors.New("discovery: bind failed")

// Sink receives every announcement the broadcaster sends. Publish must not
// block.
type Sink interface {
	Publish(a Announcement)
}

type BroadcasterConfig struct {
	// Port is the discovery port announcements are sent to.
	Port     int
	Interval time.Duration
	// Targets overrides the destination addresses. Defaults to the IPv4
	// limited broadcast address on Port.
	Targets      []string
	Sinks        []Sink
	Logger       *slog.Logger
	ListenPacket func(network, address string) (net.PacketConn, error)
}

// Broadcaster sends the host's announcement on a fixed interval. It is
// driven from the simulation loop through Step.
type Broadcaster struct {
	conn     net.PacketConn
	targets  []net.Addr
	interval time.Duration
	source   func() Announcement
	sinks    []Sink
	logger   *slog.Logger
	last     time.Time
	sent     uint64
}

// NewBroadcaster opens an ephemeral socket. source is called on every send
// to obtain the current announcement.
func NewBroadcaster(cfg BroadcasterConfig, source func() Announcement) (*Broadcaster, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ListenPacket == nil {
		cfg.ListenPacket = net.ListenPacket
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []string{net.JoinHostPort(net.IPv4bcast.String(), strconv.Itoa(cfg.Port))}
	}

	targets := make([]net.Addr, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		addr, err := net.ResolveUDPAddr("udp4", t)
		if err != nil {
			return nil, fmt.Errorf("discovery: target %q: %w", t, err)
		}
		targets = append(targets, addr)
	}

	conn, err := cfg.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}

	return &Broadcaster{
		conn:     conn,
		targets:  targets,
		interval: cfg.Interval,
		source:   source,
		sinks:    cfg.Sinks,
		logger:   cfg.Logger,
	}, nil
}

// Step sends an announcement if the interval has elapsed since the last one.
// It reports whether it sent.
func (b *Broadcaster) Step(now time.Time) bool {
	if !b.last.IsZero() && now.Sub(b.last) < b.interval {
		return false
	}
	b.last = now

	a := b.source()
	data, err := a.Encode()
	if err != nil {
		b.logger.Error("announce_encode_failed", "error", err)
		return false
	}
	for _, t := range b.targets {
		if _, err := b.conn.WriteTo(data, t); err != nil {
			b.logger.Debug("announce_send_failed", "target", t.String(), "error", err)
		}
	}
	for _, s := range b.sinks {
		s.Publish(a)
	}
	b.sent++
	return true
}

func (b *Broadcaster) Sent() uint64 {
	return b.sent
}

func (b *Broadcaster) Close() error {
	return b.conn.Close()
}
