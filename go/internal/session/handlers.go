package session

import (
	"context"

	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/session/events"
	"github.com/mcdev12/crossroads/go/internal/session/tally"
)

func (s *Session) handleJoin(c joinCmd) (models.Player, error) {
	if s.closed[c.connectionID] {
		return models.Player{}, apperr.State("connection is closed")
	}
	res, err := s.players.Join(c.connectionID, c.name, c.token)
	if err != nil {
		s.sendDirect(c.outbox, err)
		return models.Player{}, err
	}
	if res.Replaced != "" {
		s.closeOutbox(res.Replaced)
	}
	s.outboxes[c.connectionID] = c.outbox
	s.idle.Cancel()
	s.dirty = true

	p := res.Player
	s.sendTo(c.connectionID, events.TypeSessionSnapshot, events.SessionSnapshotPayload{
		Session:     s.view(),
		PlayerID:    p.ID.String(),
		Token:       p.Token,
		Reconnected: res.Reconnected,
		VotedChoice: p.VotedChoice,
	})
	s.broadcastExcept(c.connectionID, events.TypePlayerJoined, events.PlayerJoinedPayload{
		Player:      events.NewPlayerView(p),
		Reconnected: res.Reconnected,
	})

	s.log.Info().
		Str("player_id", p.ID.String()).
		Str("connection_id", c.connectionID).
		Bool("reconnected", res.Reconnected).
		Int("connected", s.players.Count()).
		Msg("player joined")

	s.maybeAutoStart()
	return *p, nil
}

// disconnect handles explicit leaves, transport disconnects and dropped slow clients alike.
func (s *Session) disconnect(connectionID string) error {
	p, ok := s.players.Leave(connectionID)
	if !ok {
		return apperr.State("connection has not joined")
	}
	s.closeOutbox(connectionID)
	s.dirty = true

	if s.status == models.SessionStatusVoting && s.tally.Retract(p.ID) {
		s.players.ClearVote(p.ID)
		s.broadcastProgress()
	}
	removed := !s.cfg.RetainDisconnected
	if removed {
		s.players.Remove(p.ID)
	}
	s.broadcast(events.TypePlayerLeft, events.PlayerLeftPayload{PlayerID: p.ID.String(), Removed: removed})

	s.log.Info().
		Str("player_id", p.ID.String()).
		Str("connection_id", connectionID).
		Int("connected", s.players.Count()).
		Msg("player left")

	if s.players.Count() > 0 {
		s.checkCompletion()
		return nil
	}
	if s.status == models.SessionStatusEnded {
		s.dispose("ended")
		return nil
	}
	s.armIdle()
	return nil
}

func (s *Session) handleVote(connectionID, choiceID string) error {
	p, ok := s.players.ByConnection(connectionID)
	if !ok {
		return apperr.Validation("join the session before voting")
	}
	if !s.status.AcceptsVotes() {
		return apperr.State("voting is not open (status %s)", s.status)
	}
	if _, ok := s.scene.Choice(choiceID); !ok {
		return apperr.Validation("unknown choice %q", choiceID)
	}

	if s.tally.Cast(p.ID, choiceID) != tally.CastUnchanged {
		s.players.MarkVoted(p.ID, choiceID)
		s.broadcastProgress()
	}
	s.checkCompletion()
	return nil
}

func (s *Session) handleStart(connectionID string) error {
	if connectionID != "" {
		if _, ok := s.players.ByConnection(connectionID); !ok {
			return apperr.Validation("join the session before starting")
		}
		if s.cfg.StartPolicy == models.StartPolicyAuto {
			return apperr.State("voting starts automatically in this session")
		}
	}
	switch s.status {
	case models.SessionStatusEnded:
		return apperr.State("session has ended")
	case models.SessionStatusVoting:
		return apperr.State("voting is already open")
	}
	if !s.scene.Votable() {
		return apperr.State("scene %s has no choices", s.scene.ID)
	}
	s.enterVoting()
	return nil
}

func (s *Session) handleLoadScene(sceneID string) error {
	if s.status.IsTerminal() {
		return apperr.State("session has ended")
	}
	scene, err := s.fetchScene(sceneID)
	if err != nil {
		return err
	}

	s.vote.Cancel()
	s.showScene(scene)
	switch {
	case scene.IsFinal:
		s.end(events.EndFinalScene, nil)
	case !scene.Votable():
		s.end(events.EndNoChoices, nil)
	default:
		s.status = models.SessionStatusWaiting
		s.maybeAutoStart()
	}
	return nil
}

func (s *Session) handleTimer(generation uint64) {
	if s.status != models.SessionStatusVoting || !s.vote.Current(generation) {
		s.log.Debug().Uint64("generation", generation).Msg("ignoring stale round timer")
		return
	}
	s.resolve(events.ReasonTimeout)
}

func (s *Session) handleIdle(generation uint64) {
	if !s.idle.Current(generation) || s.players.Count() > 0 {
		return
	}
	s.idle.Cancel()
	s.log.Info().Dur("idle_timeout", s.cfg.IdleTimeout).Msg("disposing idle session")
	s.dispose("idle")
}

// checkCompletion resolves the round once every connected player has voted.
func (s *Session) checkCompletion() {
	if s.status != models.SessionStatusVoting {
		return
	}
	n := s.players.Count()
	if n > 0 && s.players.VotedCount() == n {
		s.resolve(events.ReasonAllVoted)
	}
}

func (s *Session) maybeAutoStart() bool {
	if s.cfg.StartPolicy != models.StartPolicyAuto ||
		s.status != models.SessionStatusWaiting ||
		!s.scene.Votable() ||
		s.players.Count() < s.cfg.MinPlayers {
		return false
	}
	s.enterVoting()
	return true
}

func (s *Session) enterVoting() {
	s.tally.Reset()
	s.players.ResetVotes()
	s.round++
	deadline, _ := s.vote.Arm(s.cfg.RoundDuration)
	s.status = models.SessionStatusVoting
	s.dirty = true

	s.broadcast(events.TypeVotingStarted, events.VotingStartedPayload{
		Round:    s.round,
		SceneID:  s.scene.ID,
		Choices:  s.scene.Choices,
		Deadline: deadline,
	})
	s.log.Info().
		Int("round", s.round).
		Str("scene_id", s.scene.ID).
		Time("deadline", deadline).
		Msg("voting started")
}

// resolve closes the round, picks the winner and follows it to the next scene.
func (s *Session) resolve(reason string) {
	s.vote.Cancel()
	s.status = models.SessionStatusTransitioning
	s.dirty = true

	order := s.scene.ChoiceIDs()
	counts := s.tally.Counts(order)
	winner, ok := s.tally.Resolve(order)
	if !ok {
		s.end(events.EndNoChoices, counts)
		return
	}

	s.broadcast(events.TypeVotingEnded, events.VotingEndedPayload{
		Round:         s.round,
		WinningChoice: winner,
		Tally:         counts,
		Reason:        reason,
	})
	s.log.Info().
		Int("round", s.round).
		Str("winner", winner).
		Str("reason", reason).
		Int("ballots", s.tally.Total()).
		Msg("voting ended")

	choice, _ := s.scene.Choice(winner)
	if choice.NextSceneID == "" {
		s.end(events.EndStoryComplete, counts)
		return
	}

	next, err := s.fetchScene(choice.NextSceneID)
	if err != nil {
		endReason := events.EndSceneError
		if apperr.IsCode(err, apperr.CodeNotFound) {
			endReason = events.EndSceneNotFound
		}
		s.log.Error().Err(err).Str("scene_id", choice.NextSceneID).Msg("failed to load next scene")
		s.end(endReason, counts)
		return
	}

	s.showScene(next)
	switch {
	case next.IsFinal:
		s.end(events.EndFinalScene, counts)
	case !next.Votable():
		s.end(events.EndNoChoices, counts)
	default:
		s.status = models.SessionStatusWaiting
		if s.players.Count() > 0 {
			s.enterVoting()
		}
	}
}

func (s *Session) showScene(scene models.Scene) {
	s.scene = scene
	s.tally.Reset()
	s.players.ResetVotes()
	s.dirty = true
	s.broadcast(events.TypeSceneChanged, events.SceneChangedPayload{Scene: scene})
	s.log.Info().Str("scene_id", scene.ID).Msg("scene changed")
}

func (s *Session) end(reason string, counts map[string]int) {
	s.vote.Cancel()
	s.status = models.SessionStatusEnded
	s.dirty = true
	s.broadcast(events.TypeSessionEnded, events.SessionEndedPayload{
		SceneID:    s.scene.ID,
		FinalTally: counts,
		Reason:     reason,
	})
	s.log.Info().Str("reason", reason).Str("scene_id", s.scene.ID).Msg("session ended")

	if s.players.Count() == 0 {
		s.dispose(reason)
	}
}

func (s *Session) dispose(reason string) {
	if reason == "" {
		reason = "disposed"
	}
	s.disposed = true
	s.reason = reason
}

func (s *Session) armIdle() {
	if s.cfg.IdleTimeout > 0 && s.players.Count() == 0 {
		s.idle.Arm(s.cfg.IdleTimeout)
	}
}

func (s *Session) fetchScene(sceneID string) (models.Scene, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SceneTimeout)
	defer cancel()
	return s.deps.Scenes.GetScene(ctx, sceneID)
}

func (s *Session) view() events.SessionView {
	v := events.SessionView{
		SessionID: s.id,
		Status:    s.status,
		Round:     s.round,
		Players:   []events.PlayerView{},
		Votes:     s.tally.Counts(s.scene.ChoiceIDs()),
	}
	if s.scene.ID != "" {
		scene := s.scene
		v.Scene = &scene
	}
	if d, ok := s.vote.Deadline(); ok {
		v.Deadline = &d
	}
	for _, p := range s.players.All() {
		v.Players = append(v.Players, events.NewPlayerView(p))
	}
	return v
}
