// Package match wires the session, tick synchronizer and reconciliation
// policy into one frame loop around an in-memory entity table.
package match

import (
	"log/slog"
	"time"

	"lansync/internal/codec"
	"lansync/internal/reconcile"
	"lansync/internal/session"
	"lansync/internal/ticksync"
)

// Action tags relayed by the host to every other participant.
const (
	TagMove    = "move"
	TagAbility = "ability"
)

type Config struct {
	TickInterval time.Duration
	Policy       *reconcile.Policy
	// RelayTags are forwarded by the host to the other participants.
	// Defaults to move and ability.
	RelayTags []string
	Hazards   []ticksync.HazardSource
	Spawn     func(session.ParticipantID) codec.Payload
	Logger    *slog.Logger
}

// Game runs one process's side of a match. The session must already be
// started as host or client. Not safe for concurrent use.
type Game struct {
	session *session.Session
	world   *World
	policy  reconcile.Policy
	relay   map[string]bool
	sync    *ticksync.Synchronizer
	host    *ticksync.Host
	client  *ticksync.Client
	events  []session.Message
	logger  *slog.Logger

	// newest snapshot applied on a client
	lastTick  uint64
	haveState bool
}

func New(s *session.Session, cfg Config) *Game {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.RelayTags) == 0 {
		cfg.RelayTags = []string{TagMove, TagAbility}
	}

	g := &Game{
		session: s,
		world:   NewWorld(cfg.Spawn),
		policy:  reconcile.NewPolicy(),
		relay:   make(map[string]bool, len(cfg.RelayTags)),
		sync:    ticksync.New(cfg.TickInterval),
		logger:  cfg.Logger,
	}
	if cfg.Policy != nil {
		g.policy = *cfg.Policy
	}

	reg := s.Registry()
	ticksync.Register(reg)
	for _, tag := range cfg.RelayTags {
		g.relay[tag] = true
		if !reg.Known(tag) {
			reg.Register(tag, nil)
		}
	}

	if s.IsHost() {
		g.host = ticksync.NewHost(g.sync, s, g.world, cfg.Hazards...).WithLogger(cfg.Logger)
		if id := s.LocalID(); id != session.HostSender {
			g.world.Spawn(id, true)
		}
	} else {
		g.client = ticksync.NewClient(g.sync, s, g).WithLogger(cfg.Logger)
	}
	return g
}

func (g *Game) World() *World             { return g.world }
func (g *Game) Tick() uint64              { return g.sync.Tick() }
func (g *Game) Session() *session.Session { return g.session }

// Local is the entity this process simulates, if any.
func (g *Game) Local() (*Entity, bool) {
	id := g.session.LocalID()
	if id == session.HostSender {
		return nil, false
	}
	return g.world.Entity(id)
}

// OwnRecord uploads the local entity while it lives.
func (g *Game) OwnRecord() (codec.Payload, bool) {
	e, ok := g.Local()
	if !ok || !e.Alive() {
		return nil, false
	}
	return e.Fields.Clone(), true
}

// Frame runs one iteration of the main loop: drain the network, apply
// inbound state, then advance the tick clock by dt.
func (g *Game) Frame(dt time.Duration) int {
	g.session.Step()
	for _, m := range g.session.Messages() {
		if g.session.IsHost() {
			g.hostMessage(m)
		} else {
			g.clientMessage(m)
		}
	}
	if g.host != nil {
		return g.host.Step(dt)
	}
	return g.client.Step(dt)
}

// Events returns and clears messages the game did not consume itself:
// lifecycle events and relayed actions.
func (g *Game) Events() []session.Message {
	out := g.events
	g.events = nil
	return out
}

// Act sends a local action. A client sends it to the host, which relays
// it. The host sends it to every participant as coming from its own entity.
func (g *Game) Act(tag string, payload codec.Payload, reliable bool) error {
	if g.session.IsHost() {
		if id := g.session.LocalID(); id != session.HostSender {
			return g.session.Relay(id, tag, payload, reliable)
		}
	}
	return g.session.Send(tag, payload, reliable)
}

// Restart starts a new match on the host: every connected participant is
// respawned and disconnected ones are forgotten.
func (g *Game) Restart() error {
	if err := g.session.Restart(); err != nil {
		return err
	}
	g.world.Reset()
	g.sync.Reset()
	local := g.session.LocalID()
	for _, id := range g.session.ConnectedIDs() {
		g.world.Spawn(id, id == local)
	}
	g.logger.Info("match_reset", "participants", len(g.world.IDs()))
	return nil
}

func (g *Game) hostMessage(m session.Message) {
	switch m.Tag {
	case session.TagPlayerConnected:
		if id, ok := m.ID(); ok {
			g.world.Spawn(id, false)
		}
		g.events = append(g.events, m)

	case session.TagPlayerDisconnected:
		if id, ok := m.ID(); ok {
			g.world.Depart(id)
		}
		g.events = append(g.events, m)

	case ticksync.TagClientState:
		e, ok := g.world.Entity(m.From)
		if !ok {
			return
		}
		g.policy.Apply(reconcile.Upload, m.Payload, e)

	default:
		if g.relay[m.Tag] {
			if err := g.session.Relay(m.From, m.Tag, m.Payload, m.Reliable); err != nil {
				g.logger.Warn("relay_failed", "tag", m.Tag, "from", m.From, "error", err)
			}
		}
		g.events = append(g.events, m)
	}
}

func (g *Game) clientMessage(m session.Message) {
	switch m.Tag {
	case session.TagIDAssigned:
		if id, ok := m.ID(); ok {
			if e, exists := g.world.Entity(id); exists {
				e.Local = true
			} else {
				g.world.Spawn(id, true)
			}
		}
		g.events = append(g.events, m)

	case ticksync.TagState:
		snap, ok := ticksync.DecodeSnapshot(m.Tag, m.Payload)
		if !ok {
			return
		}
		g.applySnapshot(snap)

	default:
		g.events = append(g.events, m)
	}
}

// applySnapshot merges a host snapshot. Snapshots older than the last one
// applied are dropped. A snapshot lists every participant still in the
// match, so known entities missing from it have departed.
func (g *Game) applySnapshot(snap ticksync.Snapshot) {
	if g.haveState && snap.Tick < g.lastTick {
		g.logger.Debug("stale_snapshot", "tick", snap.Tick, "last_tick", g.lastTick)
		return
	}
	g.haveState, g.lastTick = true, snap.Tick

	local := g.session.LocalID()
	for id, rec := range snap.Players {
		e := g.world.Ensure(id)
		e.Departed = false
		g.policy.Apply(reconcile.Classify(session.RoleClient, local, id), rec, e)
	}
	for _, id := range g.world.IDs() {
		if _, ok := snap.Players[id]; !ok {
			g.world.Depart(id)
		}
	}
	for name, state := range snap.Hazards {
		g.world.SetHazard(name, state)
	}
}
