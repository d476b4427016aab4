// Package codec implements the text wire format shared by every lansync
// message:
//
//	tag|key1=value1|key2=value2|group.idx.key=value
//
// Fields are separated by '|', keys from values by the first '=', and a
// group name from its sub-key by the first '.'. The format is
// self-delimiting, so datagrams carry no length prefix.
package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	FieldSep = "|"
	KVSep    = "="
	Sep      = "."
)

var (
	ErrEmptyTag         = errors.New("codec: empty tag")
	ErrReservedChar     = errors.New("codec: reserved character")
	ErrUnsupportedValue = errors.New("codec: unsupported value")
)

// Encode serializes a tag and payload. Keys are written in sorted order so
// equal payloads always produce equal bytes. An empty group has no wire
// form and is rejected with ErrUnsupportedValue.
func Encode(tag string, payload Payload) ([]byte, error) {
	if tag == "" {
		return nil, ErrEmptyTag
	}
	if strings.ContainsAny(tag, FieldSep+KVSep+Sep) {
		return nil, fmt.Errorf("tag %q: %w", tag, ErrReservedChar)
	}

	var b strings.Builder
	b.WriteString(tag)
	for _, key := range sortedKeys(payload) {
		if key == "" || strings.ContainsAny(key, FieldSep+KVSep+Sep) {
			return nil, fmt.Errorf("field %q: %w", key, ErrReservedChar)
		}
		v := payload[key]
		if g, ok := payload.Group(key); ok {
			if len(g) == 0 {
				return nil, fmt.Errorf("field %q: empty group: %w", key, ErrUnsupportedValue)
			}
			for _, sub := range sortedKeys(g) {
				if sub == "" || strings.ContainsAny(sub, FieldSep+KVSep) {
					return nil, fmt.Errorf("field %q.%q: %w", key, sub, ErrReservedChar)
				}
				tok, err := formatScalar(g[sub])
				if err != nil {
					return nil, fmt.Errorf("field %q.%q: %w", key, sub, err)
				}
				b.WriteString(FieldSep + key + Sep + sub + KVSep + tok)
			}
			continue
		}
		tok, err := formatScalar(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		b.WriteString(FieldSep + key + KVSep + tok)
	}
	return []byte(b.String()), nil
}

// Decode parses a datagram. Malformed or truncated input yields ok == false;
// callers drop the packet. Values are auto-typed: true/false become bool,
// integers int64, other numbers float64, anything else string.
func Decode(data []byte) (Message, bool) {
	raw, ok := parse(data)
	if !ok {
		return Message{}, false
	}
	return Message{Tag: raw.tag, Payload: raw.typed(nil), Known: true}, true
}

type rawMessage struct {
	tag    string
	fields map[string]string
	groups map[string]map[string]string
}

func parse(data []byte) (rawMessage, bool) {
	if len(data) == 0 {
		return rawMessage{}, false
	}
	parts := strings.Split(string(data), FieldSep)
	raw := rawMessage{
		tag:    parts[0],
		fields: make(map[string]string),
		groups: make(map[string]map[string]string),
	}
	if raw.tag == "" || strings.ContainsAny(raw.tag, KVSep+Sep) {
		return rawMessage{}, false
	}
	for _, part := range parts[1:] {
		key, val, found := strings.Cut(part, KVSep)
		if !found || key == "" {
			return rawMessage{}, false
		}
		parent, child, nested := strings.Cut(key, Sep)
		if !nested {
			if _, dup := raw.fields[key]; dup {
				return rawMessage{}, false
			}
			if _, clash := raw.groups[key]; clash {
				return rawMessage{}, false
			}
			raw.fields[key] = val
			continue
		}
		if parent == "" || child == "" {
			return rawMessage{}, false
		}
		if _, clash := raw.fields[parent]; clash {
			return rawMessage{}, false
		}
		g, ok := raw.groups[parent]
		if !ok {
			g = make(map[string]string)
			raw.groups[parent] = g
		}
		if _, dup := g[child]; dup {
			return rawMessage{}, false
		}
		g[child] = val
	}
	return raw, true
}

// typed converts raw tokens. Fields the schema types as strings keep their
// raw token; everything else is auto-typed.
func (r rawMessage) typed(schema Schema) Payload {
	out := make(Payload, len(r.fields)+len(r.groups))
	for k, tok := range r.fields {
		if schema[k].Kind == KindString {
			out[k] = tok
			continue
		}
		out[k] = parseScalar(tok)
	}
	for k, sub := range r.groups {
		g := make(Group, len(sub))
		for sk, tok := range sub {
			g[sk] = parseScalar(tok)
		}
		out[k] = g
	}
	return out
}

func formatScalar(v any) (string, error) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return "", ErrUnsupportedValue
		}
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		if x > math.MaxInt64 {
			return "", ErrUnsupportedValue
		}
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case string:
		if strings.Contains(x, FieldSep) {
			return "", ErrReservedChar
		}
		return x, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrUnsupportedValue
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	// keep floats distinguishable from integers on the wire
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

func parseScalar(tok string) any {
	switch tok {
	case "true":
		return true
	case "false":
		return false
	}
	if !numeric(tok) {
		return tok
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return tok
}

func numeric(tok string) bool {
	digits := 0
	for _, c := range tok {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return digits > 0
}
