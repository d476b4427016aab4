// Package reconcile merges inbound state records into local entities.
//
// Movement is predicted by whoever simulates an entity; outcome state such
// as life and armor always comes from the host. A field missing from a
// record never overwrites, an explicit zero does.
package reconcile

import (
	"maps"
	"slices"

	"lansync/internal/codec"
	"lansync/internal/session"
)

type Relation int

const (
	// Remote records describe an entity this process does not simulate.
	Remote Relation = iota + 1
	// Own records come from the host about the entity this process simulates.
	Own
	// Upload records are a client's report about its own entity, applied on
	// the host.
	Upload
)

func (r Relation) String() string {
	switch r {
	case Remote:
		return "remote"
	case Own:
		return "own"
	case Upload:
		return "upload"
	}
	return "unknown"
}

// DefaultHostAuthoritative lists outcome fields owned by the host.
var DefaultHostAuthoritative = []string{"life", "armor", "alive", "score", "shield", "stunned"}

// Target is a local entity that accepts merged fields.
type Target interface {
	Set(field string, value any)
}

// PayloadTarget adapts a payload map as a Target.
type PayloadTarget codec.Payload

func (t PayloadTarget) Set(field string, value any) {
	t[field] = value
}

type Policy struct {
	hostAuthoritative map[string]bool
}

// NewPolicy returns a policy with fields as the host-authoritative set.
// With no fields DefaultHostAuthoritative is used.
func NewPolicy(fields ...string) Policy {
	if len(fields) == 0 {
		fields = DefaultHostAuthoritative
	}
	p := Policy{hostAuthoritative: make(map[string]bool, len(fields))}
	for _, f := range fields {
		p.hostAuthoritative[f] = true
	}
	return p
}

func (p Policy) HostAuthoritative(field string) bool {
	return p.hostAuthoritative[field]
}

// Filter returns the subset of record the relation allows to be applied.
func (p Policy) Filter(rel Relation, record codec.Payload) codec.Payload {
	out := make(codec.Payload, len(record))
	for field, v := range record {
		if p.allowed(rel, field) {
			out[field] = v
		}
	}
	return out
}

// Apply writes the allowed fields of record to dst and returns their names
// in sorted order.
func (p Policy) Apply(rel Relation, record codec.Payload, dst Target) []string {
	allowed := p.Filter(rel, record)
	applied := slices.Sorted(maps.Keys(allowed))
	for _, field := range applied {
		dst.Set(field, allowed[field])
	}
	return applied
}

func (p Policy) allowed(rel Relation, field string) bool {
	switch rel {
	case Remote:
		return true
	case Own:
		return p.hostAuthoritative[field]
	case Upload:
		return !p.hostAuthoritative[field]
	}
	return false
}

// Classify picks the relation for a record about subject arriving at a
// process whose local participant is local. Records on the host are always
// client uploads.
func Classify(role session.Role, local, subject session.ParticipantID) Relation {
	if role == session.RoleHost {
		return Upload
	}
	if local != 0 && subject == local {
		return Own
	}
	return Remote
}
