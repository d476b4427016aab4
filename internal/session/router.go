package session

import (
	"errors"

	"lansync/internal/codec"
	"lansync/internal/transport"
)

func (s *Session) hostEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerConnected:
		s.admit(ev.Peer)

	case transport.EventPeerDisconnected:
		id, ok := s.byPeer[ev.Peer]
		if !ok {
			return
		}
		delete(s.byPeer, ev.Peer)
		s.participants[id].Connected = false
		s.pool.Release(id)
		s.logger.Info("participant_left", "participant_id", id)
		s.queue(event(TagPlayerDisconnected, codec.Payload{"id": int(id)}))

	case transport.EventData:
		id, ok := s.byPeer[ev.Peer]
		if !ok {
			return
		}
		msg, ok := s.decode(ev.Data)
		if !ok {
			return
		}
		if Reserved(msg.Tag) {
			s.logger.Warn("reserved_tag_from_client", "participant_id", id, "tag", msg.Tag)
			return
		}
		// the host alone annotates the source
		delete(msg.Payload, FieldSource)
		s.queue(Message{Tag: msg.Tag, Payload: msg.Payload, From: id, Reliable: ev.Reliable})
	}
}

func (s *Session) admit(peer transport.PeerID) {
	addr := ""
	if a, ok := s.endpoint.PeerAddr(peer); ok {
		addr = a.String()
	}

	id, ok := s.pool.Acquire()
	if !ok {
		s.logger.Warn("server_full", "addr", addr, "capacity", s.capacity)
		s.sendPeer(peer, TagServerFull, codec.Payload{"capacity": s.capacity}, true)
		s.endpoint.Disconnect(peer)
		return
	}

	s.participants[id] = &Participant{
		ID:        id,
		Peer:      peer,
		Addr:      addr,
		Connected: true,
		JoinedAt:  s.now(),
	}
	s.byPeer[peer] = id
	s.sendPeer(peer, TagAssignID, codec.Payload{"id": int(id), "capacity": s.capacity}, true)
	s.logger.Info("participant_joined", "participant_id", id, "addr", addr)
	s.queue(event(TagPlayerConnected, codec.Payload{"id": int(id)}))
}

func (s *Session) clientEvent(ev transport.Event) {
	if ev.Peer != s.upstream {
		return
	}
	switch ev.Kind {
	case transport.EventConnectSucceeded:
		s.upConnected = true
		s.logger.Info("connected", "host", s.upstreamAddr)
		s.queue(event(TagConnected, nil))

	case transport.EventConnectFailed:
		s.logger.Warn("connect_failed", "host", s.upstreamAddr)
		s.queue(event(TagConnectFailed, codec.Payload{"host": s.upstreamAddr}))

	case transport.EventPeerDisconnected:
		s.upConnected = false
		s.logger.Info("disconnected", "host", s.upstreamAddr)
		s.queue(event(TagDisconnected, nil))

	case transport.EventData:
		msg, ok := s.decode(ev.Data)
		if !ok {
			return
		}
		switch msg.Tag {
		case TagAssignID:
			id, _ := msg.Payload.Int("id")
			capacity, _ := msg.Payload.Int("capacity")
			s.localID = ParticipantID(id)
			s.capacity = int(capacity)
			s.logger.Info("id_assigned", "participant_id", id, "capacity", capacity)
			s.queue(event(TagIDAssigned, msg.Payload))
			return
		case TagServerFull:
			s.logger.Warn("server_full", "host", s.upstreamAddr)
			s.queue(event(TagServerFull, msg.Payload))
			return
		}
		if Reserved(msg.Tag) {
			return
		}
		from := HostSender
		if src, ok := msg.Payload.Int(FieldSource); ok {
			from = ParticipantID(src)
			delete(msg.Payload, FieldSource)
		}
		s.queue(Message{Tag: msg.Tag, Payload: msg.Payload, From: from, Reliable: ev.Reliable})
	}
}

func (s *Session) decode(data []byte) (codec.Message, bool) {
	msg, err := s.registry.Decode(data)
	if err != nil {
		if errors.Is(err, codec.ErrUnknownTag) {
			s.logger.Debug("unknown_tag", "tag", msg.Tag)
		} else {
			s.logger.Debug("message_rejected", "error", err)
		}
		return codec.Message{}, false
	}
	return msg, true
}

// Send delivers a message to every peer: every connected participant on the
// host, the host on a client. A client without an assigned ID sends
// nothing. Only encoding errors are reported; delivery is fire-and-forget.
func (s *Session) Send(tag string, payload codec.Payload, reliable bool) error {
	switch s.role {
	case RoleHost:
		return s.fanout(0, tag, payload, reliable)
	case RoleClient:
		if s.localID == 0 || !s.upConnected {
			s.logger.Debug("send_suppressed", "tag", tag)
			return nil
		}
		return s.sendPeer(s.upstream, tag, payload, reliable)
	}
	return nil
}

// SendTo delivers to one participant. Unknown or disconnected IDs are a
// silent no-op.
func (s *Session) SendTo(id ParticipantID, tag string, payload codec.Payload, reliable bool) error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	p, ok := s.participants[id]
	if !ok || !p.Connected || p.Local {
		return nil
	}
	return s.sendPeer(p.Peer, tag, payload, reliable)
}

// Relay forwards a message received from one participant to every other
// connected participant, annotated with its source.
func (s *Session) Relay(from ParticipantID, tag string, payload codec.Payload, reliable bool) error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	relayed := payload.Clone()
	if relayed == nil {
		relayed = codec.Payload{}
	}
	relayed[FieldSource] = int(from)
	return s.fanout(from, tag, relayed, reliable)
}

func (s *Session) fanout(exclude ParticipantID, tag string, payload codec.Payload, reliable bool) error {
	data, err := codec.Encode(tag, payload)
	if err != nil {
		s.logger.Warn("encode_failed", "tag", tag, "error", err)
		return err
	}
	for _, id := range s.ConnectedIDs() {
		p := s.participants[id]
		if id == exclude || p.Local {
			continue
		}
		s.endpoint.Send(p.Peer, data, reliable)
	}
	return nil
}

func (s *Session) sendPeer(peer transport.PeerID, tag string, payload codec.Payload, reliable bool) error {
	data, err := codec.Encode(tag, payload)
	if err != nil {
		s.logger.Warn("encode_failed", "tag", tag, "error", err)
		return err
	}
	s.endpoint.Send(peer, data, reliable)
	return nil
}
