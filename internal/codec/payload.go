package codec

import (
	"sort"
	"strings"
)

// Payload is the field map carried by a message. Values are scalars
// (bool, int64, float64, string) or a one-level Group.
type Payload map[string]any

// Group is a one-level nested record inside a Payload. Its values are scalars.
type Group map[string]any

// Message is a decoded wire message.
type Message struct {
	Tag     string
	Payload Payload
	// Known is false when a Registry decoded a tag it has no schema for.
	Known bool
}

// Has reports whether the field is present.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns an integer field. Floats with no fractional part are accepted.
func (p Payload) Int(key string) (int64, bool) {
	return asInt(p[key])
}

// Float returns a numeric field as float64.
func (p Payload) Float(key string) (float64, bool) {
	return asFloat(p[key])
}

func (p Payload) Bool(key string) (bool, bool) {
	b, ok := p[key].(bool)
	return b, ok
}

func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Group returns a nested group field.
func (p Payload) Group(key string) (Group, bool) {
	switch g := p[key].(type) {
	case Group:
		return g, true
	case map[string]any:
		return Group(g), true
	}
	return nil, false
}

// Clone returns a shallow copy with groups copied one level deep.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		if g, ok := p.Group(k); ok {
			cp := make(Group, len(g))
			for gk, gv := range g {
				cp[gk] = gv
			}
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Records splits a group whose sub-keys look like "idx.field" into
// per-index records. Sub-keys without an index are ignored.
func (p Payload) Records(key string) map[string]Payload {
	g, ok := p.Group(key)
	if !ok {
		return nil
	}
	out := make(map[string]Payload)
	for sub, v := range g {
		idx, field, found := strings.Cut(sub, Sep)
		if !found || idx == "" || field == "" {
			continue
		}
		rec, ok := out[idx]
		if !ok {
			rec = make(Payload)
			out[idx] = rec
		}
		rec[field] = v
	}
	return out
}

// RecordGroup flattens per-index records into a group suitable for Records.
func RecordGroup(records map[string]Payload) Group {
	g := make(Group)
	for idx, rec := range records {
		for field, v := range rec {
			g[idx+Sep+field] = v
		}
	}
	return g
}

func (g Group) Int(key string) (int64, bool)     { return asInt(g[key]) }
func (g Group) Float(key string) (float64, bool) { return asFloat(g[key]) }

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
