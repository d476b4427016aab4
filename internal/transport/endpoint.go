// Package transport is a connection-oriented layer over UDP. Every send is
// either unreliable (may be dropped or reordered) or reliable
// (retransmitted until acknowledged, delivered in order per peer).
//
// An Endpoint is driven from a single goroutine through Poll. One reader
// goroutine per endpoint hands datagrams over a bounded channel; Poll never
// blocks on it.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBind    = errors.New("transport: bind failed")
	ErrClosed  = errors.New("transport: endpoint closed")
	ErrAddress = errors.New("transport: invalid address")
)

// MaxDatagramSize bounds a single read.
const MaxDatagramSize = 65536

type EventKind int

const (
	EventPeerConnected EventKind = iota + 1
	EventPeerDisconnected
	EventData
	EventConnectSucceeded
	EventConnectFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "peer_connected"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventData:
		return "data"
	case EventConnectSucceeded:
		return "connect_succeeded"
	case EventConnectFailed:
		return "connect_failed"
	}
	return "unknown"
}

type Event struct {
	Kind     EventKind
	Peer     PeerID
	Data     []byte
	Reliable bool
}

type datagram struct {
	addr net.Addr
	data []byte
}

type Endpoint struct {
	conn      net.PacketConn
	cfg       Config
	logger    *slog.Logger
	accepting bool

	peers  map[PeerID]*peer
	byAddr map[string]*peer
	nextID PeerID

	inbox   chan datagram
	dropped atomic.Uint64
	closed  atomic.Bool
	events  []Event
}

// Listen binds the game port and accepts incoming connections. Port 0 picks
// an ephemeral port.
func Listen(port int, cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	conn, err := cfg.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrBind, port, err)
	}
	return NewEndpoint(conn, cfg, true), nil
}

// Dial opens an unbound endpoint for outgoing connections only.
func Dial(cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	conn, err := cfg.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	return NewEndpoint(conn, cfg, false), nil
}

// NewEndpoint wraps an existing packet conn and starts its reader.
func NewEndpoint(conn net.PacketConn, cfg Config, accepting bool) *Endpoint {
	cfg = cfg.withDefaults()
	e := &Endpoint{
		conn:      conn,
		cfg:       cfg,
		logger:    cfg.Logger,
		accepting: accepting,
		peers:     make(map[PeerID]*peer),
		byAddr:    make(map[string]*peer),
		nextID:    1,
		inbox:     make(chan datagram, cfg.InboxSize),
	}
	go e.readLoop()
	return e
}

func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Connect starts an asynchronous connection attempt. The outcome arrives
// later from Poll as EventConnectSucceeded or EventConnectFailed.
func (e *Endpoint) Connect(address string) (PeerID, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrAddress, address, err)
	}
	now := e.cfg.Clock.Now()
	p := e.addPeer(addr, uuid.New(), now)
	p.outgoing = true
	p.state = stateConnecting
	p.lastConnect = now
	e.write(p, packet{kind: kindConnect, token: p.token}.marshal(), now)
	e.logger.Debug("connect_started", "peer_id", p.id, "remote_addr", addr.String())
	return p.id, nil
}

// Send delivers data to one peer. Unknown, closing or not yet connected
// peers are silently ignored.
func (e *Endpoint) Send(id PeerID, data []byte, reliable bool) {
	if e.closed.Load() {
		return
	}
	p, ok := e.peers[id]
	if !ok || p.state != stateConnected {
		return
	}
	if len(data) > e.cfg.MaxMessageSize {
		e.logger.Warn("message_too_large",
			"peer_id", id,
			"size", len(data),
			"max_size", e.cfg.MaxMessageSize,
		)
		return
	}
	now := e.cfg.Clock.Now()
	if !reliable {
		e.write(p, packet{kind: kindUnrel, data: data}.marshal(), now)
		return
	}
	if len(p.pending) >= e.cfg.MaxPendingReliable {
		e.logger.Warn("reliable_backlog_exceeded", "peer_id", id, "pending", len(p.pending))
		e.lose(p)
		return
	}
	e.write(p, p.queueReliable(data, now), now)
}

// Broadcast sends data to every connected peer.
func (e *Endpoint) Broadcast(data []byte, reliable bool) {
	for _, id := range e.Peers() {
		e.Send(id, data, reliable)
	}
}

// Disconnect closes a peer gracefully: reliable data already queued is
// flushed (bounded by LingerTimeout) before the peer is told to go away.
func (e *Endpoint) Disconnect(id PeerID) {
	p, ok := e.peers[id]
	if !ok || p.state == stateClosing {
		return
	}
	if p.state == stateConnecting {
		e.removePeer(p)
		return
	}
	p.state = stateClosing
	p.startedAt = e.cfg.Clock.Now()
}

// Peers returns connected peers in ID order.
func (e *Endpoint) Peers() []PeerID {
	ids := make([]PeerID, 0, len(e.peers))
	for _, id := range e.sortedPeers() {
		if e.peers[id].state == stateConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *Endpoint) PeerAddr(id PeerID) (net.Addr, bool) {
	p, ok := e.peers[id]
	if !ok {
		return nil, false
	}
	return p.addr, true
}

// Dropped counts datagrams discarded because the inbox was full.
func (e *Endpoint) Dropped() uint64 {
	return e.dropped.Load()
}

// Close tears down every peer and releases the socket. It is idempotent.
func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	disco := packet{kind: kindDisco}.marshal()
	for _, p := range e.peers {
		if p.state != stateConnecting {
			_, _ = e.conn.WriteTo(disco, p.addr)
		}
	}
	e.peers = make(map[PeerID]*peer)
	e.byAddr = make(map[string]*peer)
	e.events = nil
	return e.conn.Close()
}

// Bounds of the pause after a failed read. It doubles per consecutive
// failure and resets on success.
const (
	minReadBackoff = time.Millisecond
	maxReadBackoff = 250 * time.Millisecond
)

func nextReadBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return minReadBackoff
	}
	return min(2*d, maxReadBackoff)
}

func (e *Endpoint) readLoop() {
	buf := make([]byte, MaxDatagramSize)
	var backoff time.Duration
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			if e.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP unreachable and similar are reported per read; keep going
			backoff = nextReadBackoff(backoff)
			e.logger.Debug("udp_read_error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case e.inbox <- datagram{addr: addr, data: data}:
		default:
			e.dropped.Add(1)
		}
	}
}

func (e *Endpoint) addPeer(addr net.Addr, token uuid.UUID, now time.Time) *peer {
	p := newPeer(e.nextID, addr, token, e.cfg, now)
	e.nextID++
	e.peers[p.id] = p
	e.byAddr[addr.String()] = p
	return p
}

func (e *Endpoint) removePeer(p *peer) {
	delete(e.peers, p.id)
	if cur, ok := e.byAddr[p.addr.String()]; ok && cur == p {
		delete(e.byAddr, p.addr.String())
	}
}

// lose drops a peer without a handshake and reports it.
func (e *Endpoint) lose(p *peer) {
	wasConnecting := p.state == stateConnecting && p.outgoing
	e.removePeer(p)
	if wasConnecting {
		e.emit(Event{Kind: EventConnectFailed, Peer: p.id})
		return
	}
	e.emit(Event{Kind: EventPeerDisconnected, Peer: p.id})
}

func (e *Endpoint) emit(ev Event) {
	e.events = append(e.events, ev)
}

func (e *Endpoint) write(p *peer, wire []byte, now time.Time) {
	p.lastSend = now
	if _, err := e.conn.WriteTo(wire, p.addr); err != nil {
		e.logger.Debug("udp_write_failed", "peer_id", p.id, "error", err)
	}
}
