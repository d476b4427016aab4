// Package transporttest provides socket wrappers for exercising the
// transport under loss.
package transporttest

import (
	"net"
	"sync"
	"sync/atomic"

	"lansync/internal/transport"
)

// DropFunc decides whether an outgoing datagram is silently discarded.
// attempt counts transmissions of the same packet to the same address,
// starting at 1.
type DropFunc func(info transport.PacketInfo, attempt int) bool

// LossyConn drops outgoing datagrams chosen by Drop.
type LossyConn struct {
	net.PacketConn
	Drop DropFunc

	mu       sync.Mutex
	attempts map[attemptKey]int
	dropped  atomic.Int64
}

type attemptKey struct {
	addr string
	kind string
	seq  uint16
}

func NewLossyConn(conn net.PacketConn, drop DropFunc) *LossyConn {
	return &LossyConn{PacketConn: conn, Drop: drop, attempts: make(map[attemptKey]int)}
}

func (c *LossyConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if info, ok := transport.Inspect(b); ok && c.Drop != nil {
		c.mu.Lock()
		key := attemptKey{addr: addr.String(), kind: info.Kind, seq: info.Seq}
		c.attempts[key]++
		attempt := c.attempts[key]
		c.mu.Unlock()
		if c.Drop(info, attempt) {
			c.dropped.Add(1)
			return len(b), nil
		}
	}
	return c.PacketConn.WriteTo(b, addr)
}

// Dropped counts discarded datagrams.
func (c *LossyConn) Dropped() int64 {
	return c.dropped.Load()
}

// Listener returns a transport.Config ListenPacket hook that binds loopback
// sockets and wraps each one in a LossyConn. Every wrapped conn is recorded
// in conns.
func Listener(drop DropFunc, conns *[]*LossyConn) func(network, address string) (net.PacketConn, error) {
	var mu sync.Mutex
	return func(network, address string) (net.PacketConn, error) {
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenPacket(network, net.JoinHostPort("127.0.0.1", port))
		if err != nil {
			return nil, err
		}
		lc := NewLossyConn(conn, drop)
		if conns != nil {
			mu.Lock()
			*conns = append(*conns, lc)
			mu.Unlock()
		}
		return lc, nil
	}
}

// Unreliable drops every unreliable datagram.
func Unreliable(info transport.PacketInfo, attempt int) bool {
	return info.Kind == "unreliable"
}

// FirstTransmission drops the first send of every reliable packet, forcing
// a retransmission.
func FirstTransmission(info transport.PacketInfo, attempt int) bool {
	return info.Kind == "reliable" && attempt == 1
}
