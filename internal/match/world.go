package match

import (
	"maps"
	"slices"

	"lansync/internal/codec"
	"lansync/internal/session"
)

// Entity is the opaque keyed record for one participant.
type Entity struct {
	ID     session.ParticipantID
	Local  bool
	Fields codec.Payload
	// Departed is set once the participant has left the match. Departed
	// entities are dead and no longer broadcast.
	Departed bool
}

func (e *Entity) Set(field string, value any) {
	e.Fields[field] = value
}

func (e *Entity) Alive() bool {
	alive, ok := e.Fields.Bool("alive")
	return !ok || alive
}

// World is the in-memory entity table.
type World struct {
	entities map[session.ParticipantID]*Entity
	hazards  map[string]codec.Group
	spawn    func(id session.ParticipantID) codec.Payload
}

func DefaultSpawn(id session.ParticipantID) codec.Payload {
	return codec.Payload{
		"x":     float64(id) * 64,
		"y":     0.0,
		"life":  3,
		"alive": true,
	}
}

func NewWorld(spawn func(session.ParticipantID) codec.Payload) *World {
	if spawn == nil {
		spawn = DefaultSpawn
	}
	return &World{
		entities: make(map[session.ParticipantID]*Entity),
		hazards:  make(map[string]codec.Group),
		spawn:    spawn,
	}
}

// Spawn creates or resets the entity for id.
func (w *World) Spawn(id session.ParticipantID, local bool) *Entity {
	e := &Entity{ID: id, Local: local, Fields: w.spawn(id)}
	w.entities[id] = e
	return e
}

// Ensure returns the entity for id, creating a blank one if needed.
func (w *World) Ensure(id session.ParticipantID) *Entity {
	if e, ok := w.entities[id]; ok {
		return e
	}
	e := &Entity{ID: id, Fields: codec.Payload{}}
	w.entities[id] = e
	return e
}

func (w *World) Entity(id session.ParticipantID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Kill marks an entity dead without removing it.
func (w *World) Kill(id session.ParticipantID) {
	if e, ok := w.entities[id]; ok {
		e.Fields["alive"] = false
	}
}

// Depart kills the entity and marks its participant as gone.
func (w *World) Depart(id session.ParticipantID) {
	w.Kill(id)
	if e, ok := w.entities[id]; ok {
		e.Departed = true
	}
}

func (w *World) Remove(id session.ParticipantID) {
	delete(w.entities, id)
}

func (w *World) IDs() []session.ParticipantID {
	return slices.Sorted(maps.Keys(w.entities))
}

// PlayerRecords returns a copy of the fields of every entity whose
// participant is still in the match. Dead entities are included so their
// outcome reaches every client.
func (w *World) PlayerRecords() map[session.ParticipantID]codec.Payload {
	out := make(map[session.ParticipantID]codec.Payload, len(w.entities))
	for id, e := range w.entities {
		if !e.Departed {
			rec := e.Fields.Clone()
			// never empty, so every present entity is on the wire
			rec["alive"] = e.Alive()
			out[id] = rec
		}
	}
	return out
}

func (w *World) SetHazard(name string, state codec.Group) {
	w.hazards[name] = state
}

func (w *World) Hazard(name string) (codec.Group, bool) {
	g, ok := w.hazards[name]
	return g, ok
}

func (w *World) Reset() {
	clear(w.entities)
	clear(w.hazards)
}
