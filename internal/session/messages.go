package session

import (
	"lansync/internal/codec"
)

// Wire control tags, sent host to client.
const (
	TagAssignID   = "assign_id"
	TagServerFull = "server_full"
)

// Local event tags, queued for the application and never sent.
const (
	TagPlayerConnected    = "player_connected"
	TagPlayerDisconnected = "player_disconnected"
	TagIDAssigned         = "id_assigned"
	TagConnected          = "connected"
	TagConnectFailed      = "connect_failed"
	TagDisconnected       = "disconnected"
)

// FieldSource carries the original sender on relayed messages.
const FieldSource = "src"

var reservedTags = map[string]bool{
	TagAssignID:           true,
	TagServerFull:         true,
	TagPlayerConnected:    true,
	TagPlayerDisconnected: true,
	TagIDAssigned:         true,
	TagConnected:          true,
	TagConnectFailed:      true,
	TagDisconnected:       true,
}

// Reserved reports whether tag belongs to the session layer.
func Reserved(tag string) bool {
	return reservedTags[tag]
}

// Message is an inbound message or local session event.
type Message struct {
	Tag     string
	Payload codec.Payload
	// From is the participant the message came from: the sender on the host,
	// the relayed origin on a client, HostSender otherwise.
	From     ParticipantID
	Reliable bool
}

// ID returns the "id" field carried by participant and assignment events.
func (m Message) ID() (ParticipantID, bool) {
	n, ok := m.Payload.Int("id")
	return ParticipantID(n), ok
}

func registerControl(r *codec.Registry) {
	r.Register(TagAssignID, codec.Schema{
		"id":       {Kind: codec.KindInt, Required: true},
		"capacity": {Kind: codec.KindInt, Required: true},
	})
	r.Register(TagServerFull, codec.Schema{
		"capacity": {Kind: codec.KindInt},
	})
}

func event(tag string, payload codec.Payload) Message {
	if payload == nil {
		payload = codec.Payload{}
	}
	return Message{Tag: tag, Payload: payload, From: HostSender, Reliable: true}
}
