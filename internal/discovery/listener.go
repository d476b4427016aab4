package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

type ListenerConfig struct {
	Port         int
	TTL          time.Duration
	InboxSize    int
	Logger       *slog.Logger
	ListenPacket func(network, address string) (net.PacketConn, error)
}

type datagram struct {
	from net.Addr
	data []byte
}

// Listener collects announcements on the discovery port. A reader goroutine
// hands datagrams over a bounded channel; Poll drains it without blocking.
type Listener struct {
	conn   net.PacketConn
	table  *HostTable
	inbox  chan datagram
	closed atomic.Bool
	logger *slog.Logger
}

// Listen binds the discovery port. Port 0 picks an ephemeral port.
func Listen(cfg ListenerConfig) (*Listener, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ListenPacket == nil {
		cfg.ListenPacket = net.ListenPacket
	}

	conn, err := cfg.ListenPacket("udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrBind, cfg.Port, err)
	}

	l := &Listener{
		conn:   conn,
		table:  NewHostTable(cfg.TTL),
		inbox:  make(chan datagram, cfg.InboxSize),
		logger: cfg.Logger,
	}
	go l.readLoop()
	return l, nil
}

func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) readLoop() {
	buf := make([]byte, 2048)
	var backoff time.Duration
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// pace persistent failures instead of spinning
			backoff = min(max(2*backoff, time.Millisecond), 250*time.Millisecond)
			l.logger.Debug("discovery_read_failed", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case l.inbox <- datagram{from: from, data: data}:
		default:
		}
	}
}

// Poll ingests pending announcements, expires stale hosts and returns the
// current table.
func (l *Listener) Poll(now time.Time) []Host {
	if l.closed.Load() {
		return nil
	}
drain:
	for {
		select {
		case d := <-l.inbox:
			l.ingest(d, now)
		default:
			break drain
		}
	}
	for _, addr := range l.table.Expire(now) {
		l.logger.Info("host_expired", "addr", addr)
	}
	return l.table.Hosts()
}

func (l *Listener) ingest(d datagram, now time.Time) {
	a, err := ParseAnnouncement(d.data)
	if err != nil {
		l.logger.Debug("announce_rejected", "from", d.from.String(), "error", err)
		return
	}
	ip := d.from.String()
	if udp, ok := d.from.(*net.UDPAddr); ok {
		ip = udp.IP.String()
	}
	if l.table.Upsert(ip, a, now) {
		l.logger.Info("host_discovered",
			"addr", joinHostPort(ip, a.GamePort),
			"session_id", a.SessionID,
			"participants", a.Participants,
			"capacity", a.Capacity,
		)
	}
}

func (l *Listener) Hosts() []Host {
	return l.table.Hosts()
}

func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.conn.Close()
}
