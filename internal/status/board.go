// Package status exposes a read-only HTTP view of a running session.
package status

import (
	"sync/atomic"
	"time"

	"lansync/internal/session"
)

type ParticipantStatus struct {
	ID        int       `json:"id"`
	Addr      string    `json:"addr,omitempty"`
	Connected bool      `json:"connected"`
	Local     bool      `json:"local"`
	JoinedAt  time.Time `json:"joined_at"`
}

type Snapshot struct {
	Role         string              `json:"role"`
	LocalID      int                 `json:"local_id"`
	Capacity     int                 `json:"capacity"`
	RelayOnly    bool                `json:"relay_only"`
	Connected    int                 `json:"connected"`
	Tick         uint64              `json:"tick"`
	Address      string              `json:"address,omitempty"`
	Participants []ParticipantStatus `json:"participants"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// FromSession captures s. Call it from the goroutine that drives s.
func FromSession(s *session.Session, tick uint64, now time.Time) Snapshot {
	snap := Snapshot{
		Role:         s.Role().String(),
		LocalID:      int(s.LocalID()),
		Capacity:     s.Capacity(),
		RelayOnly:    s.RelayOnly(),
		Connected:    s.ConnectedCount(),
		Tick:         tick,
		Address:      s.LocalAddr(),
		Participants: []ParticipantStatus{},
		UpdatedAt:    now,
	}
	for _, p := range s.Participants() {
		snap.Participants = append(snap.Participants, ParticipantStatus{
			ID:        int(p.ID),
			Addr:      p.Addr,
			Connected: p.Connected,
			Local:     p.Local,
			JoinedAt:  p.JoinedAt,
		})
	}
	return snap
}

// Board hands snapshots from the simulation goroutine to HTTP handlers.
type Board struct {
	current atomic.Pointer[Snapshot]
}

func NewBoard() *Board {
	b := &Board{}
	b.current.Store(&Snapshot{Role: session.RoleNone.String(), Participants: []ParticipantStatus{}})
	return b
}

func (b *Board) Publish(s Snapshot) {
	b.current.Store(&s)
}

func (b *Board) Current() Snapshot {
	return *b.current.Load()
}
