package ticksync

import (
	"errors"
	"fmt"
	"strconv"

	"lansync/internal/codec"
	"lansync/internal/session"
)

const (
	TagState       = "state"
	TagClientState = "client_state"

	FieldTick    = "tick"
	GroupPlayers = "players"
)

var ErrHazardName = errors.New("ticksync: invalid hazard name")

// Snapshot is one tick of authoritative state.
type Snapshot struct {
	Tick    uint64
	Players map[session.ParticipantID]codec.Payload
	// Hazards maps hazard name to its flattened fields.
	Hazards map[string]codec.Group
}

// Payload encodes the snapshot as the body of a state message: a players
// group keyed "<id>.<field>", one group per hazard and the tick counter.
// Hazards with no state are left out.
func (s Snapshot) Payload() (codec.Payload, error) {
	p := codec.Payload{FieldTick: int64(s.Tick)}

	records := make(map[string]codec.Payload, len(s.Players))
	for id, rec := range s.Players {
		records[strconv.Itoa(int(id))] = rec
	}
	if len(records) > 0 {
		p[GroupPlayers] = codec.RecordGroup(records)
	}

	for name, g := range s.Hazards {
		if name == FieldTick || name == GroupPlayers {
			return nil, fmt.Errorf("%w: %q", ErrHazardName, name)
		}
		if len(g) > 0 {
			p[name] = g
		}
	}
	return p, nil
}

// DecodeSnapshot reads a state message. Player entries with a non-numeric
// index are skipped.
func DecodeSnapshot(tag string, p codec.Payload) (Snapshot, bool) {
	if tag != TagState {
		return Snapshot{}, false
	}
	tick, ok := p.Int(FieldTick)
	if !ok || tick < 0 {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Tick:    uint64(tick),
		Players: make(map[session.ParticipantID]codec.Payload),
		Hazards: make(map[string]codec.Group),
	}
	for idx, rec := range p.Records(GroupPlayers) {
		id, err := strconv.Atoi(idx)
		if err != nil || id <= 0 {
			continue
		}
		snap.Players[session.ParticipantID(id)] = rec
	}
	for key := range p {
		if key == GroupPlayers {
			continue
		}
		if g, ok := p.Group(key); ok {
			snap.Hazards[key] = g
		}
	}
	return snap, true
}

// Register adds the tick message schemas to r.
func Register(r *codec.Registry) {
	r.Register(TagState, codec.Schema{
		FieldTick:    {Kind: codec.KindInt, Required: true},
		GroupPlayers: {Kind: codec.KindGroup},
	})
	r.Register(TagClientState, nil)
}
