package transport

import (
	"maps"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Poll processes every datagram received since the last call, runs
// retransmission and liveness timers, and returns the resulting events. It
// never blocks and must be called once per simulation step.
func (e *Endpoint) Poll() []Event {
	if e.closed.Load() {
		return nil
	}
	now := e.cfg.Clock.Now()

	// bounded so a flood cannot starve the caller
	for i := 0; i < cap(e.inbox); i++ {
		select {
		case d := <-e.inbox:
			e.handle(d, now)
			continue
		default:
		}
		break
	}
	e.service(now)

	out := e.events
	e.events = nil
	return out
}

func (e *Endpoint) handle(d datagram, now time.Time) {
	pkt, ok := unmarshalPacket(d.data)
	if !ok {
		e.logger.Debug("invalid_datagram", "remote_addr", d.addr.String(), "size", len(d.data))
		return
	}
	p := e.byAddr[d.addr.String()]
	if pkt.kind == kindConnect {
		e.handleConnect(p, d.addr, pkt.token, now)
		return
	}
	if p == nil {
		return
	}
	p.lastRecv = now

	switch pkt.kind {
	case kindAccept:
		if p.outgoing && p.state == stateConnecting && pkt.token == p.token {
			p.state = stateConnected
			e.logger.Info("connect_succeeded", "peer_id", p.id, "remote_addr", p.addr.String())
			e.emit(Event{Kind: EventConnectSucceeded, Peer: p.id})
		}
	case kindAck:
		p.ack(pkt.seq)
	case kindPing:
	case kindDisco:
		e.logger.Info("peer_disconnected", "peer_id", p.id, "reason", "remote_close")
		e.lose(p)
	case kindUnrel:
		if p.state != stateConnected || !p.limiter.AllowN(now, 1) {
			return
		}
		e.emit(Event{Kind: EventData, Peer: p.id, Data: pkt.data})
	case kindRel:
		if p.state == stateConnecting {
			return
		}
		// unacknowledged, so the sender retries once the limiter refills
		if !p.limiter.AllowN(now, 1) {
			return
		}
		e.write(p, packet{kind: kindAck, seq: pkt.seq}.marshal(), now)
		delivered := p.receiveReliable(pkt.seq, pkt.data)
		if p.state != stateConnected {
			return
		}
		for _, data := range delivered {
			e.emit(Event{Kind: EventData, Peer: p.id, Data: data, Reliable: true})
		}
	}
}

func (e *Endpoint) handleConnect(p *peer, addr net.Addr, token uuid.UUID, now time.Time) {
	if !e.accepting {
		return
	}
	if p != nil {
		if p.token == token {
			// retried handshake; our accept was probably lost
			if p.state == stateConnected {
				e.write(p, packet{kind: kindAccept, token: token}.marshal(), now)
			}
			return
		}
		// same address, new attempt: the old connection is gone
		e.logger.Info("peer_replaced", "peer_id", p.id, "remote_addr", addr.String())
		e.lose(p)
	}
	if len(e.peers) >= e.cfg.MaxPeers {
		e.logger.Warn("peer_limit_reached", "remote_addr", addr.String(), "max_peers", e.cfg.MaxPeers)
		return
	}
	p = e.addPeer(addr, token, now)
	p.state = stateConnected
	e.write(p, packet{kind: kindAccept, token: token}.marshal(), now)
	e.logger.Info("peer_connected", "peer_id", p.id, "remote_addr", addr.String())
	e.emit(Event{Kind: EventPeerConnected, Peer: p.id})
}

// service runs the per-peer timers.
func (e *Endpoint) service(now time.Time) {
	for _, id := range e.sortedPeers() {
		p := e.peers[id]

		if p.state == stateConnecting {
			if now.Sub(p.startedAt) >= e.cfg.ConnectTimeout {
				e.logger.Warn("connect_timed_out", "peer_id", p.id, "remote_addr", p.addr.String())
				e.lose(p)
				continue
			}
			if now.Sub(p.lastConnect) >= e.cfg.ConnectRetryInterval {
				p.lastConnect = now
				e.write(p, packet{kind: kindConnect, token: p.token}.marshal(), now)
			}
			continue
		}

		if now.Sub(p.lastRecv) >= e.cfg.PeerTimeout {
			e.logger.Warn("peer_timed_out", "peer_id", p.id, "remote_addr", p.addr.String())
			e.lose(p)
			continue
		}
		if !e.retransmit(p, now) {
			e.logger.Warn("peer_unresponsive", "peer_id", p.id, "pending", len(p.pending))
			e.lose(p)
			continue
		}

		if p.state == stateClosing {
			if len(p.pending) == 0 || now.Sub(p.startedAt) >= e.cfg.LingerTimeout {
				e.write(p, packet{kind: kindDisco}.marshal(), now)
				e.removePeer(p)
				e.logger.Info("peer_disconnected", "peer_id", p.id, "reason", "local_close")
				e.emit(Event{Kind: EventPeerDisconnected, Peer: p.id})
			}
			continue
		}
		if now.Sub(p.lastSend) >= e.cfg.PingInterval {
			e.write(p, packet{kind: kindPing}.marshal(), now)
		}
	}
}

// retransmit resends overdue reliable packets. It reports false once a
// packet has exhausted its retries.
func (e *Endpoint) retransmit(p *peer, now time.Time) bool {
	for _, pp := range p.pending {
		if now.Sub(pp.sentAt) < e.cfg.RetransmitInterval {
			continue
		}
		if pp.retries >= e.cfg.MaxRetransmits {
			return false
		}
		pp.retries++
		pp.sentAt = now
		e.write(p, pp.wire, now)
	}
	return true
}

func (e *Endpoint) sortedPeers() []PeerID {
	return slices.Sorted(maps.Keys(e.peers))
}
