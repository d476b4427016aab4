package match

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lansync/internal/codec"
	"lansync/internal/session"
	"lansync/internal/ticksync"
)

type table struct {
	t     *testing.T
	games []*Game
}

func (tb *table) add(g *Game) *Game {
	tb.games = append(tb.games, g)
	tb.t.Cleanup(g.Session().Stop)
	return g
}

func (tb *table) host(capacity int) *Game {
	s := session.New(session.Config{})
	require.NoError(tb.t, s.StartHost(0, capacity))
	return tb.add(New(s, Config{TickInterval: 10 * time.Millisecond}))
}

func (tb *table) join(host *Game) *Game {
	_, port, err := net.SplitHostPort(host.Session().LocalAddr())
	require.NoError(tb.t, err)
	s := session.New(session.Config{})
	require.NoError(tb.t, s.StartClient(net.JoinHostPort("127.0.0.1", port)))
	g := tb.add(New(s, Config{TickInterval: 10 * time.Millisecond}))
	tb.until(func() bool { return s.LocalID() != 0 })
	return g
}

func (tb *table) frame() {
	for _, g := range tb.games {
		g.Frame(10 * time.Millisecond)
	}
}

func (tb *table) until(cond func() bool) {
	tb.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tb.frame()
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.t.Fatal("condition not reached")
}

func field(g *Game, id session.ParticipantID, name string) any {
	e, ok := g.World().Entity(id)
	if !ok {
		return nil
	}
	return e.Fields[name]
}

func asFloat(v any) float64 {
	f, _ := codec.Payload{"v": v}.Float("v")
	return f
}

func asInt(v any) int64 {
	n, _ := codec.Payload{"v": v}.Int("v")
	return n
}

func TestGame_HostAuthorityOverUploads(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(3)
	a := tb.join(host)
	b := tb.join(host)
	aid, bid := a.Session().LocalID(), b.Session().LocalID()

	tb.until(func() bool {
		_, ok := host.World().Entity(bid)
		return ok
	})
	assert.Equal(t, []session.ParticipantID{1, aid, bid}, host.World().IDs())

	// A moves and tries to heal itself
	local, ok := a.Local()
	require.True(t, ok)
	local.Set("x", 500.0)
	local.Set("life", 99)

	tb.until(func() bool { return asFloat(field(host, aid, "x")) == 500 })
	assert.Equal(t, int64(3), asInt(field(host, aid, "life")))

	// B mirrors A's position from the host snapshot
	tb.until(func() bool { return asFloat(field(b, aid, "x")) == 500 })

	// the host damages A and echoes a stale position in the same snapshot;
	// A takes the life total and keeps its own position
	ha, _ := host.World().Entity(aid)
	ha.Set("life", 1)
	ha.Set("x", -1.0)
	tb.until(func() bool { return asInt(field(a, aid, "life")) == 1 })
	assert.Equal(t, 500.0, asFloat(field(a, aid, "x")))
}

func TestGame_ActionsRelayedOnce(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(3)
	a := tb.join(host)
	b := tb.join(host)

	require.NoError(t, a.Act(TagMove, codec.Payload{"dx": 1.0}, true))

	var got []session.Message
	tb.until(func() bool {
		for _, m := range b.Events() {
			if m.Tag == TagMove {
				got = append(got, m)
			}
		}
		return len(got) > 0
	})
	assert.Equal(t, a.Session().LocalID(), got[0].From)

	for i := 0; i < 20; i++ {
		tb.frame()
		time.Sleep(2 * time.Millisecond)
	}
	for _, m := range a.Events() {
		assert.NotEqual(t, TagMove, m.Tag)
	}
	for _, m := range b.Events() {
		assert.NotEqual(t, TagMove, m.Tag)
	}

	// the host's own action reaches clients as coming from ID 1
	require.NoError(t, host.Act(TagAbility, codec.Payload{"kind": "dash"}, true))
	tb.until(func() bool {
		for _, m := range a.Events() {
			if m.Tag == TagAbility && m.From == session.HostID {
				return true
			}
		}
		return false
	})
}

func TestGame_DisconnectKillsAndRestartRespawns(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(3)
	a := tb.join(host)
	aid := a.Session().LocalID()
	tb.until(func() bool {
		_, ok := host.World().Entity(aid)
		return ok
	})

	a.Session().Stop()
	tb.until(func() bool {
		e, ok := host.World().Entity(aid)
		return ok && !e.Alive()
	})
	assert.NotContains(t, host.World().PlayerRecords(), aid)

	before := host.Tick()
	require.NoError(t, host.Restart())
	assert.Equal(t, []session.ParticipantID{session.HostID}, host.World().IDs())
	assert.Equal(t, before, host.Tick(), "ticks keep counting across a restart")
}

// dead reports whether g sees id as dead with an explicit zero life.
func dead(g *Game, id session.ParticipantID) bool {
	e, ok := g.World().Entity(id)
	if !ok || e.Alive() {
		return false
	}
	life, ok := e.Fields.Int("life")
	return ok && life == 0
}

func TestGame_HostDecidedDeathReachesEveryClient(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(3)
	a := tb.join(host)
	b := tb.join(host)
	bid := b.Session().LocalID()
	tb.until(func() bool {
		_, ok := a.World().Entity(bid)
		return ok
	})

	hb, ok := host.World().Entity(bid)
	require.True(t, ok)
	hb.Set("life", 0)
	hb.Set("alive", false)

	// the owner takes the outcome from the host and so does everyone else
	tb.until(func() bool { return dead(b, bid) && dead(a, bid) })
	assert.Contains(t, host.World().PlayerRecords(), bid)

	// b stops uploading once dead, so the host's verdict stands
	for i := 0; i < 20; i++ {
		tb.frame()
		time.Sleep(2 * time.Millisecond)
	}
	assert.True(t, dead(host, bid))
	assert.True(t, dead(a, bid))
}

func TestGame_DepartureReachesRemainingClients(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(3)
	a := tb.join(host)
	b := tb.join(host)
	bid := b.Session().LocalID()
	tb.until(func() bool {
		e, ok := a.World().Entity(bid)
		return ok && e.Alive()
	})

	b.Session().Stop()
	tb.until(func() bool {
		e, ok := a.World().Entity(bid)
		return ok && e.Departed && !e.Alive()
	})
	assert.NotContains(t, host.World().PlayerRecords(), bid)

	// the remaining client keeps its own entity
	local, ok := a.Local()
	require.True(t, ok)
	assert.True(t, local.Alive())
	assert.False(t, local.Departed)
}

func TestApplySnapshot_DropsStaleAndDepartsMissing(t *testing.T) {
	g := New(session.New(session.Config{}), Config{})

	g.applySnapshot(ticksync.Snapshot{
		Tick: 5,
		Players: map[session.ParticipantID]codec.Payload{
			2: {"x": 1.0, "alive": true},
			3: {"x": 1.0, "alive": true},
		},
	})

	// a late, older snapshot does not roll state back
	g.applySnapshot(ticksync.Snapshot{
		Tick:    4,
		Players: map[session.ParticipantID]codec.Payload{2: {"x": 9.0, "alive": true}},
	})
	assert.Equal(t, 1.0, field(g, 2, "x"))
	e3, _ := g.World().Entity(3)
	assert.True(t, e3.Alive())

	g.applySnapshot(ticksync.Snapshot{
		Tick:    6,
		Players: map[session.ParticipantID]codec.Payload{2: {"x": 2.0, "alive": true}},
	})
	assert.Equal(t, 2.0, field(g, 2, "x"))
	assert.True(t, e3.Departed)
	assert.False(t, e3.Alive())

	// a respawned participant comes back
	g.applySnapshot(ticksync.Snapshot{
		Tick: 7,
		Players: map[session.ParticipantID]codec.Payload{
			2: {"x": 2.0, "alive": true},
			3: {"x": 0.0, "alive": true},
		},
	})
	assert.False(t, e3.Departed)
	assert.True(t, e3.Alive())
}

func TestGame_ClientRestartIsRejected(t *testing.T) {
	tb := &table{t: t}
	host := tb.host(2)
	a := tb.join(host)
	assert.ErrorIs(t, a.Restart(), session.ErrNotHost)
}

func TestApplySnapshot_RemoteRecordsAndHazards(t *testing.T) {
	// an idle session is enough to exercise merging
	g := New(session.New(session.Config{}), Config{})

	g.applySnapshot(ticksync.Snapshot{
		Players: map[session.ParticipantID]codec.Payload{
			4: {"x": 7.0, "life": int64(2)},
		},
		Hazards: map[string]codec.Group{"lightning": {"warnings": int64(1)}},
	})
	assert.Equal(t, 7.0, field(g, 4, "x"))
	assert.Equal(t, int64(2), field(g, 4, "life"))
	hz, ok := g.World().Hazard("lightning")
	require.True(t, ok)
	assert.Equal(t, int64(1), hz["warnings"])
}

func TestWorld_RecordsEveryoneStillPresent(t *testing.T) {
	w := NewWorld(nil)
	w.Spawn(1, true)
	w.Spawn(2, false)
	w.Spawn(3, false)
	w.Kill(2)
	w.Depart(3)
	w.Kill(9)
	w.Depart(9)

	recs := w.PlayerRecords()
	assert.Contains(t, recs, session.ParticipantID(1))
	require.Contains(t, recs, session.ParticipantID(2))
	assert.Equal(t, false, recs[2]["alive"], "dead entities still report their outcome")
	assert.NotContains(t, recs, session.ParticipantID(3))

	// records are copies
	recs[1]["x"] = -1.0
	assert.NotEqual(t, -1.0, worldField(w, 1, "x"))

	e := w.Ensure(5)
	assert.True(t, e.Alive(), "entities without an alive field count as alive")
	w.Remove(5)
	assert.Equal(t, []session.ParticipantID{1, 2, 3}, w.IDs())
}

func worldField(w *World, id session.ParticipantID, name string) any {
	e, _ := w.Entity(id)
	return e.Fields[name]
}
