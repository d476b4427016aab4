package transport

import (
	"encoding/binary"

	"github.com/google/uuid"
)

var be = binary.BigEndian

/*
Datagram format:

	magic   uint32
	kind    uint8
	body...

	kindConnect, kindAccept: token [16]byte
	kindRel:                 seq uint16, data...
	kindAck:                 seq uint16
	kindUnrel:               data...
	kindPing, kindDisco:     (empty)
*/

// magic must be at the start of every datagram.
const magic uint32 = 0x4c4e5331

const headerSize = 5

type kind uint8

const (
	kindConnect kind = iota + 1
	kindAccept
	kindUnrel
	kindRel
	kindAck
	kindPing
	kindDisco
)

// seqnums order reliable packets within one peer.
type seqnum uint16

// seqLess compares with wraparound.
func seqLess(a, b seqnum) bool {
	return int16(a-b) < 0
}

type packet struct {
	kind  kind
	token uuid.UUID
	seq   seqnum
	data  []byte
}

func (p packet) marshal() []byte {
	size := headerSize
	switch p.kind {
	case kindConnect, kindAccept:
		size += len(p.token)
	case kindRel:
		size += 2 + len(p.data)
	case kindAck:
		size += 2
	case kindUnrel:
		size += len(p.data)
	}

	buf := make([]byte, size)
	be.PutUint32(buf[0:4], magic)
	buf[4] = byte(p.kind)
	body := buf[headerSize:]
	switch p.kind {
	case kindConnect, kindAccept:
		copy(body, p.token[:])
	case kindRel:
		be.PutUint16(body[0:2], uint16(p.seq))
		copy(body[2:], p.data)
	case kindAck:
		be.PutUint16(body[0:2], uint16(p.seq))
	case kindUnrel:
		copy(body, p.data)
	}
	return buf
}

// unmarshalPacket reports false for anything that is not a well-formed
// datagram of this protocol.
func unmarshalPacket(buf []byte) (packet, bool) {
	if len(buf) < headerSize || be.Uint32(buf[0:4]) != magic {
		return packet{}, false
	}
	p := packet{kind: kind(buf[4])}
	body := buf[headerSize:]
	switch p.kind {
	case kindConnect, kindAccept:
		if len(body) != len(p.token) {
			return packet{}, false
		}
		copy(p.token[:], body)
	case kindRel:
		if len(body) < 2 {
			return packet{}, false
		}
		p.seq = seqnum(be.Uint16(body[0:2]))
		p.data = body[2:]
	case kindAck:
		if len(body) != 2 {
			return packet{}, false
		}
		p.seq = seqnum(be.Uint16(body[0:2]))
	case kindUnrel:
		p.data = body
	case kindPing, kindDisco:
	default:
		return packet{}, false
	}
	return p, true
}

func (k kind) String() string {
	switch k {
	case kindConnect:
		return "connect"
	case kindAccept:
		return "accept"
	case kindUnrel:
		return "unreliable"
	case kindRel:
		return "reliable"
	case kindAck:
		return "ack"
	case kindPing:
		return "ping"
	case kindDisco:
		return "disconnect"
	}
	return "unknown"
}

// PacketInfo describes a raw datagram for tooling and tests.
type PacketInfo struct {
	Kind string
	Seq  uint16
	Data []byte
}

// Inspect decodes the transport header of a raw datagram.
func Inspect(b []byte) (PacketInfo, bool) {
	p, ok := unmarshalPacket(b)
	if !ok {
		return PacketInfo{}, false
	}
	return PacketInfo{Kind: p.kind.String(), Seq: uint16(p.seq), Data: p.data}, true
}
