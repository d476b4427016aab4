// Package discovery advertises running hosts on the local network. A host
// broadcasts a small announce datagram about once a second; listeners keep
// a table of hosts seen recently. Delivery is best effort and
// unauthenticated.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"lansync/internal/codec"
)

const (
	DefaultPort     = 27016
	DefaultInterval = time.Second
	DefaultTTL      = 5 * time.Second

	TagAnnounce = "announce"
)

// Announcement is the presence record a host broadcasts.
type Announcement struct {
	SessionID    string
	Address      string // host IP as the host sees it
	GamePort     int
	Participants int
	Capacity     int
	RelayOnly    bool
}

var registry = func() *codec.Registry {
	r := codec.NewRegistry()
	r.Register(TagAnnounce, codec.Schema{
		"session":  {Kind: codec.KindString, Required: true},
		"addr":     {Kind: codec.KindString},
		"port":     {Kind: codec.KindInt, Required: true},
		"count":    {Kind: codec.KindInt, Required: true},
		"capacity": {Kind: codec.KindInt, Required: true},
		"relay":    {Kind: codec.KindBool},
	})
	return r
}()

func (a Announcement) payload() codec.Payload {
	return codec.Payload{
		"session":  a.SessionID,
		"addr":     a.Address,
		"port":     a.GamePort,
		"count":    a.Participants,
		"capacity": a.Capacity,
		"relay":    a.RelayOnly,
	}
}

func (a Announcement) Encode() ([]byte, error) {
	return codec.Encode(TagAnnounce, a.payload())
}

func ParseAnnouncement(data []byte) (Announcement, error) {
	msg, err := registry.Decode(data)
	if err != nil {
		return Announcement{}, err
	}
	if msg.Tag != TagAnnounce {
		return Announcement{}, fmt.Errorf("discovery: unexpected tag %q", msg.Tag)
	}
	p := msg.Payload
	a := Announcement{}
	a.SessionID, _ = p.String("session")
	a.Address, _ = p.String("addr")
	port, _ := p.Int("port")
	count, _ := p.Int("count")
	capacity, _ := p.Int("capacity")
	a.RelayOnly, _ = p.Bool("relay")
	if port <= 0 || port > 65535 {
		return Announcement{}, fmt.Errorf("discovery: invalid game port %d", port)
	}
	a.GamePort = int(port)
	a.Participants = int(count)
	a.Capacity = int(capacity)
	return a, nil
}

// HostAddress returns this machine's outward-facing LAN address, or
// 127.0.0.1 when no route exists. No packet is sent.
func HostAddress() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsUnspecified() {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
