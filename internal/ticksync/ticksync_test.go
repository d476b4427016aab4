package ticksync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lansync/internal/codec"
	"lansync/internal/session"
	"lansync/internal/ticksync"
)

func TestSynchronizer_FixedRate(t *testing.T) {
	s := ticksync.New(100 * time.Millisecond)

	assert.Equal(t, 0, s.Step(40*time.Millisecond))
	assert.Equal(t, 0, s.Step(40*time.Millisecond))
	assert.Equal(t, 1, s.Step(40*time.Millisecond))
	assert.Equal(t, 2, s.Step(200*time.Millisecond))
	assert.Equal(t, uint64(3), s.Tick())

	assert.Equal(t, 0, s.Step(0))
	assert.Equal(t, 0, s.Step(-time.Second))
}

func TestSynchronizer_NeverFasterThanInterval(t *testing.T) {
	s := ticksync.New(0)
	require.Equal(t, time.Duration(0), s.Interval)

	// one second of tiny frames yields exactly thirty ticks
	total := 0
	for i := 0; i < 1000; i++ {
		total += s.Step(time.Millisecond)
	}
	assert.Equal(t, 30, total)
}

func TestSynchronizer_CatchUpIsBoundedAndBacklogDropped(t *testing.T) {
	s := ticksync.New(10 * time.Millisecond)
	s.MaxCatchUp = 3

	assert.Equal(t, 3, s.Step(time.Second))
	assert.Equal(t, 0, s.Step(time.Millisecond))
	assert.Equal(t, uint64(3), s.Tick())

	// reset drops the partial interval but keeps counting ticks
	assert.Equal(t, 0, s.Step(5*time.Millisecond))
	s.Reset()
	assert.Equal(t, 0, s.Step(9*time.Millisecond))
	assert.Equal(t, 1, s.Step(time.Millisecond))
	assert.Equal(t, uint64(4), s.Tick())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	snap := ticksync.Snapshot{
		Tick: 42,
		Players: map[session.ParticipantID]codec.Payload{
			1: {"x": 1.5, "y": 0.0, "life": int64(3), "alive": true},
			2: {"x": -4.25, "y": 8.0, "life": int64(0), "alive": false},
		},
		Hazards: map[string]codec.Group{
			"lightning": {"warnings": int64(1), "next_strike": 2.5, "strike.0.x": 10.0},
			"quiet":     {},
		},
	}
	payload, err := snap.Payload()
	require.NoError(t, err)

	wire, err := codec.Encode(ticksync.TagState, payload)
	require.NoError(t, err)

	reg := codec.NewRegistry()
	ticksync.Register(reg)
	msg, err := reg.Decode(wire)
	require.NoError(t, err)

	got, ok := ticksync.DecodeSnapshot(msg.Tag, msg.Payload)
	require.True(t, ok)
	assert.Equal(t, uint64(42), got.Tick)
	require.Len(t, got.Players, 2)

	life, ok := got.Players[2].Int("life")
	assert.True(t, ok, "explicit zero is present")
	assert.Zero(t, life)
	alive, _ := got.Players[1].Bool("alive")
	assert.True(t, alive)
	x, _ := got.Players[2].Float("x")
	assert.Equal(t, -4.25, x)

	require.Contains(t, got.Hazards, "lightning")
	next, _ := got.Hazards["lightning"].Float("next_strike")
	assert.Equal(t, 2.5, next)
	sx, _ := got.Hazards["lightning"].Float("strike.0.x")
	assert.Equal(t, 10.0, sx)
	assert.NotContains(t, got.Hazards, "quiet", "hazards without state are not sent")
}

func TestSnapshot_RejectsReservedHazardNames(t *testing.T) {
	for _, name := range []string{ticksync.FieldTick, ticksync.GroupPlayers} {
		_, err := ticksync.Snapshot{Hazards: map[string]codec.Group{name: {"a": 1}}}.Payload()
		assert.ErrorIs(t, err, ticksync.ErrHazardName)
	}
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	_, ok := ticksync.DecodeSnapshot("move", codec.Payload{"tick": 1})
	assert.False(t, ok)
	_, ok = ticksync.DecodeSnapshot(ticksync.TagState, codec.Payload{})
	assert.False(t, ok)
	_, ok = ticksync.DecodeSnapshot(ticksync.TagState, codec.Payload{"tick": int64(-1)})
	assert.False(t, ok)

	snap, ok := ticksync.DecodeSnapshot(ticksync.TagState, codec.Payload{
		"tick":    int64(1),
		"players": codec.Group{"abc.x": 1.0, "0.x": 1.0, "3.x": 2.0},
	})
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
	assert.Contains(t, snap.Players, session.ParticipantID(3))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(tag string, payload codec.Payload, reliable bool) error {
	args := m.Called(tag, payload, reliable)
	return args.Error(0)
}

type players map[session.ParticipantID]codec.Payload

func (p players) PlayerRecords() map[session.ParticipantID]codec.Payload { return p }

type storm struct{ warnings int }

func (s *storm) HazardName() string { return "lightning" }
func (s *storm) HazardState() codec.Group {
	return codec.Group{"warnings": s.warnings}
}

type own struct {
	rec codec.Payload
	ok  bool
}

func (o own) OwnRecord() (codec.Payload, bool) { return o.rec, o.ok }

func TestHost_BroadcastsOneUnreliableSnapshotPerStep(t *testing.T) {
	sender := new(mockSender)
	sender.On("Send", ticksync.TagState, mock.MatchedBy(func(p codec.Payload) bool {
		g, ok := p.Group(ticksync.GroupPlayers)
		if !ok {
			return false
		}
		_, hasHazard := p.Group("lightning")
		return len(g) == 2 && hasHazard
	}), false).Return(nil)

	host := ticksync.NewHost(
		ticksync.New(10*time.Millisecond),
		sender,
		players{1: {"x": 1.0}, 2: {"x": 2.0}},
		&storm{warnings: 2},
	)

	assert.Equal(t, 0, host.Step(5*time.Millisecond))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, 3, host.Step(30*time.Millisecond))
	sender.AssertNumberOfCalls(t, "Send", 1)

	snap := host.Snapshot()
	assert.Equal(t, uint64(3), snap.Tick)
	assert.Equal(t, 2, snap.Hazards["lightning"]["warnings"])
}

func TestClient_UploadsOwnRecordUnreliably(t *testing.T) {
	sender := new(mockSender)
	rec := codec.Payload{"x": 3.0}
	sender.On("Send", ticksync.TagClientState, rec, false).Return(nil)

	client := ticksync.NewClient(ticksync.New(10*time.Millisecond), sender, own{rec: rec, ok: true})
	assert.Equal(t, 1, client.Step(10*time.Millisecond))
	assert.Equal(t, 0, client.Step(time.Millisecond))
	sender.AssertNumberOfCalls(t, "Send", 1)

	idle := new(mockSender)
	ticksync.NewClient(ticksync.New(10*time.Millisecond), idle, own{}).Step(time.Second)
	idle.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}
