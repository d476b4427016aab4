package transport

import (
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// PeerID identifies a remote endpoint for the lifetime of one connection.
// IDs are never reused by an Endpoint.
type PeerID uint32

type peerState int

const (
	stateConnecting peerState = iota
	stateConnected
	stateClosing
)

type pendingPkt struct {
	seq     seqnum
	wire    []byte
	sentAt  time.Time
	retries int
}

type peer struct {
	id       PeerID
	addr     net.Addr
	token    uuid.UUID
	state    peerState
	outgoing bool

	startedAt     time.Time // connect attempt or closing start
	lastConnect   time.Time
	lastRecv      time.Time
	lastSend      time.Time
	limiter       *rate.Limiter
	nextSendSeq   seqnum
	pending       []*pendingPkt
	nextRecvSeq   seqnum
	outOfOrder    map[seqnum][]byte
	maxOutOfOrder int
}

func newPeer(id PeerID, addr net.Addr, token uuid.UUID, cfg Config, now time.Time) *peer {
	return &peer{
		id:            id,
		addr:          addr,
		token:         token,
		startedAt:     now,
		lastRecv:      now,
		lastSend:      now,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		outOfOrder:    make(map[seqnum][]byte),
		maxOutOfOrder: cfg.MaxPendingReliable,
	}
}

// queueReliable assigns the next sequence number and records the wire bytes
// for retransmission.
func (p *peer) queueReliable(data []byte, now time.Time) []byte {
	pkt := packet{kind: kindRel, seq: p.nextSendSeq, data: data}
	wire := pkt.marshal()
	p.pending = append(p.pending, &pendingPkt{seq: pkt.seq, wire: wire, sentAt: now})
	p.nextSendSeq++
	return wire
}

func (p *peer) ack(seq seqnum) {
	for i, pp := range p.pending {
		if pp.seq == seq {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// receiveReliable returns the payloads that are now deliverable in order.
func (p *peer) receiveReliable(seq seqnum, data []byte) [][]byte {
	switch {
	case seq == p.nextRecvSeq:
		out := [][]byte{data}
		p.nextRecvSeq++
		for {
			next, ok := p.outOfOrder[p.nextRecvSeq]
			if !ok {
				break
			}
			delete(p.outOfOrder, p.nextRecvSeq)
			out = append(out, next)
			p.nextRecvSeq++
		}
		return out
	case seqLess(p.nextRecvSeq, seq):
		if _, dup := p.outOfOrder[seq]; !dup && len(p.outOfOrder) < p.maxOutOfOrder {
			p.outOfOrder[seq] = data
		}
	}
	// anything older was already delivered
	return nil
}
