package discovery

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Host is a discovered host.
type Host struct {
	Announcement
	// SourceIP is where the announcement came from. It is what a client
	// dials, since the announced address may be a different interface.
	SourceIP string
	LastSeen time.Time
}

// GameAddr is the host:port to join.
func (h Host) GameAddr() string {
	ip := h.SourceIP
	if ip == "" {
		ip = h.Address
	}
	return joinHostPort(ip, h.GamePort)
}

func (h Host) Full() bool {
	return h.Capacity > 0 && h.Participants >= h.Capacity
}

// HostTable tracks hosts keyed by sender address and game port. Entries not
// refreshed within ttl expire.
type HostTable struct {
	mu    sync.RWMutex
	hosts map[string]*Host
	ttl   time.Duration
}

func NewHostTable(ttl time.Duration) *HostTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HostTable{hosts: make(map[string]*Host), ttl: ttl}
}

// Upsert adds or refreshes a host. It reports whether the host is new.
func (t *HostTable) Upsert(sourceIP string, a Announcement, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := joinHostPort(sourceIP, a.GamePort)
	_, exists := t.hosts[key]
	t.hosts[key] = &Host{Announcement: a, SourceIP: sourceIP, LastSeen: now}
	return !exists
}

// Expire drops hosts older than the ttl and returns their game addresses.
func (t *HostTable) Expire(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var gone []string
	for key, h := range t.hosts {
		if now.Sub(h.LastSeen) > t.ttl {
			delete(t.hosts, key)
			gone = append(gone, key)
		}
	}
	slices.Sort(gone)
	return gone
}

// Hosts returns a copy of the table ordered by game address.
func (t *HostTable) Hosts() []Host {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Host, 0, len(t.hosts))
	for _, h := range t.hosts {
		out = append(out, *h)
	}
	slices.SortFunc(out, func(a, b Host) int {
		return strings.Compare(a.GameAddr(), b.GameAddr())
	})
	return out
}

func (t *HostTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.hosts)
}
