package transport

import (
	"log/slog"
	"net"
	"time"
)

// Config holds transport tuning. Zero fields fall back to DefaultConfig.
type Config struct {
	MaxPeers             int
	MaxMessageSize       int
	InboxSize            int
	RetransmitInterval   time.Duration
	MaxRetransmits       int
	MaxPendingReliable   int
	PingInterval         time.Duration
	PeerTimeout          time.Duration
	ConnectRetryInterval time.Duration
	ConnectTimeout       time.Duration
	LingerTimeout        time.Duration

	// inbound datagrams per second per peer, with burst
	RateLimit float64
	RateBurst int

	Clock  Clock
	Logger *slog.Logger
	// ListenPacket opens the socket; net.ListenPacket when nil.
	ListenPacket func(network, address string) (net.PacketConn, error)
}

func DefaultConfig() Config {
	return Config{
		MaxPeers:             16,
		MaxMessageSize:       16 << 10,
		InboxSize:            1024,
		RetransmitInterval:   100 * time.Millisecond,
		MaxRetransmits:       50,
		MaxPendingReliable:   1024,
		PingInterval:         time.Second,
		PeerTimeout:          10 * time.Second,
		ConnectRetryInterval: 250 * time.Millisecond,
		ConnectTimeout:       5 * time.Second,
		LingerTimeout:        time.Second,
		RateLimit:            300,
		RateBurst:            600,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.RetransmitInterval <= 0 {
		c.RetransmitInterval = d.RetransmitInterval
	}
	if c.MaxRetransmits <= 0 {
		c.MaxRetransmits = d.MaxRetransmits
	}
	if c.MaxPendingReliable <= 0 {
		c.MaxPendingReliable = d.MaxPendingReliable
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = d.PeerTimeout
	}
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = d.ConnectRetryInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.LingerTimeout <= 0 {
		c.LingerTimeout = d.LingerTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ListenPacket == nil {
		c.ListenPacket = net.ListenPacket
	}
	return c
}
