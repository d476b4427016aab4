// Package ticksync runs state exchange at a fixed tick rate. The host
// aggregates every live participant's record and hazard state into one
// snapshot per tick; each client uploads its own record.
package ticksync

import (
	"time"
)

const (
	// DefaultInterval is 30 ticks per second.
	DefaultInterval   = time.Second / 30
	DefaultMaxCatchUp = 4
)

// Synchronizer turns elapsed frame time into whole ticks. It never reports
// more than one tick per interval of elapsed time, and at most MaxCatchUp
// per Step; older backlog is dropped.
type Synchronizer struct {
	Interval   time.Duration
	MaxCatchUp int

	acc  time.Duration
	tick uint64
}

func New(interval time.Duration) *Synchronizer {
	return &Synchronizer{Interval: interval, MaxCatchUp: DefaultMaxCatchUp}
}

func (s *Synchronizer) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

// Step accumulates dt and returns how many ticks are due.
func (s *Synchronizer) Step(dt time.Duration) int {
	if dt <= 0 {
		return 0
	}
	iv := s.interval()
	limit := s.MaxCatchUp
	if limit <= 0 {
		limit = DefaultMaxCatchUp
	}

	s.acc += dt
	n := int(s.acc / iv)
	s.acc -= time.Duration(n) * iv
	if n > limit {
		n = limit
	}
	s.tick += uint64(n)
	return n
}

// Tick counts ticks emitted so far.
func (s *Synchronizer) Tick() uint64 {
	return s.tick
}

// Reset drops accumulated time. The tick count keeps increasing so
// receivers can still order snapshots across a match restart.
func (s *Synchronizer) Reset() {
	s.acc = 0
}
