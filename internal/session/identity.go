package session

import (
	"time"

	"lansync/internal/transport"
)

// ParticipantID is a small positive slot number, 1..capacity.
type ParticipantID int

// HostSender marks messages that originate from the host process itself
// rather than from a relayed participant.
const HostSender ParticipantID = 0

// HostID is the host's own participant unless the host runs relay-only.
const HostID ParticipantID = 1

const (
	MinCapacity = 2
	MaxCapacity = 12
)

type Participant struct {
	ID        ParticipantID
	Peer      transport.PeerID // zero for the local participant and on clients
	Addr      string
	Connected bool
	Local     bool // simulated by this process
	JoinedAt  time.Time
}

// IDPool hands out the lowest free ID in [min, max]. A released ID is
// retired until Recycle so that no two connections share an ID within one
// match.
type IDPool struct {
	min, max ParticipantID
	inUse    map[ParticipantID]bool
	retired  map[ParticipantID]bool
}

func NewIDPool(min, max ParticipantID) *IDPool {
	return &IDPool{
		min:     min,
		max:     max,
		inUse:   make(map[ParticipantID]bool),
		retired: make(map[ParticipantID]bool),
	}
}

func (p *IDPool) Acquire() (ParticipantID, bool) {
	for id := p.min; id <= p.max; id++ {
		if !p.inUse[id] && !p.retired[id] {
			p.inUse[id] = true
			return id, true
		}
	}
	return 0, false
}

func (p *IDPool) Release(id ParticipantID) {
	if !p.inUse[id] {
		return
	}
	delete(p.inUse, id)
	p.retired[id] = true
}

// Recycle makes retired IDs assignable again.
func (p *IDPool) Recycle() {
	p.retired = make(map[ParticipantID]bool)
}

// Free counts IDs that Acquire could still return.
func (p *IDPool) Free() int {
	n := 0
	for id := p.min; id <= p.max; id++ {
		if !p.inUse[id] && !p.retired[id] {
			n++
		}
	}
	return n
}
