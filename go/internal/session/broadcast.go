package session

import (
	"github.com/mcdev12/crossroads/go/internal/session/events"
)

func (s *Session) message(typ events.Type, payload any) (events.Message, bool) {
	msg, err := events.New(s.id, typ, payload, s.clock.Now())
	if err != nil {
		s.log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build message")
		return events.Message{}, false
	}
	return msg, true
}

func (s *Session) broadcast(typ events.Type, payload any) {
	s.broadcastExcept("", typ, payload)
}

func (s *Session) broadcastExcept(skip string, typ events.Type, payload any) {
	msg, ok := s.message(typ, payload)
	if !ok {
		return
	}
	for id, out := range s.outboxes {
		if id == skip {
			continue
		}
		s.deliver(id, out, msg)
	}
	s.log.Debug().
		Str("event_type", string(typ)).
		Int("connections", len(s.outboxes)).
		Msg("event broadcasted")
}

func (s *Session) sendTo(connectionID string, typ events.Type, payload any) {
	out, ok := s.outboxes[connectionID]
	if !ok {
		return
	}
	if msg, ok := s.message(typ, payload); ok {
		s.deliver(connectionID, out, msg)
	}
}

func (s *Session) broadcastProgress() {
	s.broadcast(events.TypeVoteProgress, events.VoteProgressPayload{
		Voted:   s.players.VotedCount(),
		Players: s.players.Count(),
	})
}

// sendError reports err to the connection that caused it. A nil err is a no-op.
func (s *Session) sendError(connectionID string, err error) {
	if err == nil {
		return
	}
	if out, ok := s.outboxes[connectionID]; ok {
		s.deliver(connectionID, out, events.ErrorMessage(s.id, err, s.clock.Now()))
	}
}

// sendDirect reports err on an outbox the session does not own yet.
func (s *Session) sendDirect(out chan<- events.Message, err error) {
	if out == nil {
		return
	}
	select {
	case out <- events.ErrorMessage(s.id, err, s.clock.Now()):
	default:
	}
}

// deliver never blocks; a client that cannot keep up is dropped and treated
// as having left once the current command is done.
func (s *Session) deliver(connectionID string, out chan<- events.Message, msg events.Message) {
	select {
	case out <- msg:
	default:
		s.log.Warn().
			Str("connection_id", connectionID).
			Str("event_type", string(msg.Type)).
			Msg("connection send buffer full, dropping connection")
		s.closeOutbox(connectionID)
		s.dropped = append(s.dropped, connectionID)
	}
}

func (s *Session) closeOutbox(connectionID string) {
	if out, ok := s.outboxes[connectionID]; ok {
		close(out)
		delete(s.outboxes, connectionID)
	}
	s.closed[connectionID] = true
}

func (s *Session) flushDropped() {
	for len(s.dropped) > 0 && !s.disposed {
		id := s.dropped[0]
		s.dropped = s.dropped[1:]
		_ = s.disconnect(id)
	}
	s.dropped = nil
}
