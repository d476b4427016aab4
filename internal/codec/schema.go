package codec

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed  = errors.New("codec: malformed message")
	ErrUnknownTag = errors.New("codec: unknown tag")
	ErrSchema     = errors.New("codec: schema violation")
)

type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindInt
	KindFloat // accepts integers too
	KindString
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindGroup:
		return "group"
	}
	return "any"
}

type Field struct {
	Kind     Kind
	Required bool
}

// Schema describes the fields a tag is expected to carry. Fields not named in
// the schema are passed through auto-typed.
type Schema map[string]Field

// Registry maps tags to schemas. Register everything before the first
// Decode; the registry is not safe for concurrent mutation.
type Registry struct {
	schemas map[string]Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// Register adds or replaces the schema for tag. A nil schema accepts any
// payload.
func (r *Registry) Register(tag string, schema Schema) {
	if schema == nil {
		schema = Schema{}
	}
	r.schemas[tag] = schema
}

func (r *Registry) Known(tag string) bool {
	_, ok := r.schemas[tag]
	return ok
}

// Decode parses data and validates it against the tag's schema. Unknown
// tags return the auto-typed message with Known == false and ErrUnknownTag,
// which callers treat as "ignore".
func (r *Registry) Decode(data []byte) (Message, error) {
	raw, ok := parse(data)
	if !ok {
		return Message{}, ErrMalformed
	}
	schema, known := r.schemas[raw.tag]
	if !known {
		return Message{Tag: raw.tag, Payload: raw.typed(nil)}, ErrUnknownTag
	}
	payload := raw.typed(schema)
	if err := schema.validate(payload); err != nil {
		return Message{}, fmt.Errorf("%s: %w", raw.tag, err)
	}
	return Message{Tag: raw.tag, Payload: payload, Known: true}, nil
}

func (s Schema) validate(p Payload) error {
	for name, f := range s {
		v, present := p[name]
		if !present {
			if f.Required {
				return fmt.Errorf("%w: missing %q", ErrSchema, name)
			}
			continue
		}
		if !f.Kind.accepts(v) {
			return fmt.Errorf("%w: %q is not %s", ErrSchema, name, f.Kind)
		}
	}
	return nil
}

func (k Kind) accepts(v any) bool {
	switch k {
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		_, ok := v.(int64)
		return ok
	case KindFloat:
		switch v.(type) {
		case int64, float64:
			return true
		}
		return false
	case KindString:
		_, ok := v.(string)
		return ok
	case KindGroup:
		_, ok := v.(Group)
		return ok
	}
	return true
}
