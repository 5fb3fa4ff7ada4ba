package session

import (
	"context"

	"github.com/mcdev12/crossroads/go/internal/session/snapshot"
)

// persist saves a snapshot after a transition. Saving is best effort: a failed
// save is retried once, after which the session keeps running without
// persistence.
func (s *Session) persist() {
	s.dirty = false
	if s.deps.Store == nil || s.degraded || s.disposed {
		return
	}

	st := snapshot.State{
		SessionID: s.id,
		Status:    s.status,
		SceneID:   s.scene.ID,
		Round:     s.round,
		SavedAt:   s.clock.Now(),
	}
	for _, p := range s.players.All() {
		st.Players = append(st.Players, snapshot.PlayerRecord{
			ID:       p.ID,
			Token:    p.Token,
			Name:     p.Name,
			JoinedAt: p.JoinedAt,
		})
	}
	blob, err := snapshot.Encode(st)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode snapshot")
		return
	}

	for attempt := 1; attempt <= 2; attempt++ {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SaveTimeout)
		err = s.deps.Store.Save(ctx, s.id, blob)
		cancel()
		if err == nil {
			return
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("snapshot save failed")
	}
	s.degraded = true
	s.log.Error().Err(err).Msg("snapshot store unavailable, continuing without persistence")
}
