// Package session layers roles and participant identity over the
// transport. A process is idle, a host or a client. The host accepts up to
// capacity participants, assigns each a stable ID over the reliable
// channel and relays traffic between clients.
//
// A Session is not safe for concurrent use; drive it from the simulation
// goroutine through Step.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"time"

	"lansync/internal/codec"
	"lansync/internal/transport"
)

var (
	ErrInvalidCapacity = errors.New("session: capacity out of range")
	ErrAlreadyStarted  = errors.New("session: already started")
	ErrInvalidAddress  = errors.New("session: invalid host address")
	ErrNotHost         = errors.New("session: not hosting")
)

// DefaultPort is the well-known game port.
const DefaultPort = 27015

type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	}
	return "none"
}

type Config struct {
	// RelayOnly hosts hold no participant of their own; clients take IDs
	// 1..capacity.
	RelayOnly bool
	// DefaultPort is used when StartClient gets an address without a port.
	DefaultPort int
	Transport   transport.Config
	// Registry decodes inbound messages. Control schemas are added to it.
	Registry *codec.Registry
	Logger   *slog.Logger
}

type Session struct {
	cfg      Config
	logger   *slog.Logger
	registry *codec.Registry

	role     Role
	endpoint *transport.Endpoint
	capacity int
	localID  ParticipantID

	// host side
	pool         *IDPool
	participants map[ParticipantID]*Participant
	byPeer       map[transport.PeerID]ParticipantID

	// client side
	upstream     transport.PeerID
	upConnected  bool
	upstreamAddr string

	inbox []Message
}

func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = codec.NewRegistry()
	}
	if cfg.DefaultPort == 0 {
		cfg.DefaultPort = DefaultPort
	}
	if cfg.Transport.Logger == nil {
		cfg.Transport.Logger = cfg.Logger
	}
	registerControl(cfg.Registry)
	return &Session{cfg: cfg, logger: cfg.Logger, registry: cfg.Registry}
}

// StartHost binds port and begins accepting participants. capacity counts
// every participant including the host itself unless relay-only.
func (s *Session) StartHost(port, capacity int) error {
	if s.role != RoleNone {
		return ErrAlreadyStarted
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidCapacity, capacity, MinCapacity, MaxCapacity)
	}

	tcfg := s.cfg.Transport
	// room for overflow peers to connect and be told the session is full
	if tcfg.MaxPeers < capacity+4 {
		tcfg.MaxPeers = capacity + 4
	}
	ep, err := transport.Listen(port, tcfg)
	if err != nil {
		s.logger.Error("host_start_failed", "port", port, "error", err)
		return err
	}

	s.role = RoleHost
	s.endpoint = ep
	s.capacity = capacity
	s.participants = make(map[ParticipantID]*Participant)
	s.byPeer = make(map[transport.PeerID]ParticipantID)

	if s.cfg.RelayOnly {
		s.pool = NewIDPool(1, ParticipantID(capacity))
	} else {
		s.localID = HostID
		s.pool = NewIDPool(HostID+1, ParticipantID(capacity))
		s.participants[HostID] = &Participant{
			ID:        HostID,
			Addr:      ep.LocalAddr().String(),
			Connected: true,
			Local:     true,
			JoinedAt:  s.now(),
		}
	}

	s.logger.Info("host_started",
		"addr", ep.LocalAddr().String(),
		"capacity", capacity,
		"relay_only", s.cfg.RelayOnly,
	)
	return nil
}

// StartClient connects to a host. address is "host" or "host:port". The
// outcome arrives through Messages as connected or connect_failed.
func (s *Session) StartClient(address string) error {
	if s.role != RoleNone {
		return ErrAlreadyStarted
	}
	addr, err := s.normalizeAddress(address)
	if err != nil {
		return err
	}

	ep, err := transport.Dial(s.cfg.Transport)
	if err != nil {
		s.logger.Error("client_start_failed", "error", err)
		return err
	}
	peer, err := ep.Connect(addr)
	if err != nil {
		_ = ep.Close()
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	s.role = RoleClient
	s.endpoint = ep
	s.upstream = peer
	s.upstreamAddr = addr
	s.logger.Info("client_started", "host", addr)
	return nil
}

func (s *Session) normalizeAddress(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	addr := net.JoinHostPort(address, strconv.Itoa(s.cfg.DefaultPort))
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr, nil
}

// Stop tears down the endpoint and returns to idle. Remote peers are told
// to disconnect. Safe to call in any state.
func (s *Session) Stop() {
	if s.endpoint != nil {
		_ = s.endpoint.Close()
		s.logger.Info("session_stopped", "role", s.role.String())
	}
	*s = Session{cfg: s.cfg, logger: s.logger, registry: s.registry}
}

// Restart begins a new match on the host: disconnected participants are
// forgotten and their IDs become assignable again.
func (s *Session) Restart() error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	for id, p := range s.participants {
		if !p.Connected {
			delete(s.participants, id)
		}
	}
	s.pool.Recycle()
	s.logger.Info("match_restarted", "participants", len(s.participants))
	return nil
}

// Step drains the transport and queues resulting messages. Call once per
// frame before Messages.
func (s *Session) Step() {
	if s.endpoint == nil {
		return
	}
	for _, ev := range s.endpoint.Poll() {
		switch s.role {
		case RoleHost:
			s.hostEvent(ev)
		case RoleClient:
			s.clientEvent(ev)
		}
	}
}

// Messages returns and clears the queued inbound messages and local events
// in arrival order.
func (s *Session) Messages() []Message {
	out := s.inbox
	s.inbox = nil
	return out
}

func (s *Session) Role() Role                { return s.role }
func (s *Session) IsHost() bool              { return s.role == RoleHost }
func (s *Session) LocalID() ParticipantID    { return s.localID }
func (s *Session) Capacity() int             { return s.capacity }
func (s *Session) RelayOnly() bool           { return s.cfg.RelayOnly }
func (s *Session) Registry() *codec.Registry { return s.registry }

// IsConnected is true for a host and for a client whose handshake with the
// host has completed and not since dropped.
func (s *Session) IsConnected() bool {
	switch s.role {
	case RoleHost:
		return true
	case RoleClient:
		return s.upConnected
	}
	return false
}

// ConnectedCount counts connected participants on the host, including the
// host itself. Clients report zero.
func (s *Session) ConnectedCount() int {
	if s.role != RoleHost {
		return 0
	}
	n := 0
	for _, p := range s.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// Participants lists known participants ordered by ID, including
// disconnected ones until the next Restart.
func (s *Session) Participants() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, id := range slices.Sorted(maps.Keys(s.participants)) {
		out = append(out, *s.participants[id])
	}
	return out
}

// ConnectedIDs lists connected participant IDs in ascending order.
func (s *Session) ConnectedIDs() []ParticipantID {
	var ids []ParticipantID
	for _, id := range slices.Sorted(maps.Keys(s.participants)) {
		if s.participants[id].Connected {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) LocalAddr() string {
	if s.endpoint == nil {
		return ""
	}
	return s.endpoint.LocalAddr().String()
}

// HostAddr is the address a client dialed.
func (s *Session) HostAddr() string {
	return s.upstreamAddr
}

func (s *Session) now() time.Time {
	if s.cfg.Transport.Clock != nil {
		return s.cfg.Transport.Clock.Now()
	}
	return time.Now()
}

func (s *Session) queue(m Message) {
	s.inbox = append(s.inbox, m)
}
