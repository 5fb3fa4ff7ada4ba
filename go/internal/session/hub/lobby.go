package hub

import (
	"context"

	"github.com/mcdev12/crossroads/go/internal/session/lobby"
	"github.com/rs/zerolog/log"
)

// notice is one lobby update. Notices are delivered one at a time in the
// order they were queued.
type notice struct {
	register   *lobby.Metadata
	unregister string
	flushed    chan struct{}
}

// register and unregister notify the lobby in the background; a failure is
// logged and never affects the session.
func (h *Hub) register(meta lobby.Metadata) {
	h.notify(notice{register: &meta})
}

func (h *Hub) unregister(id string) {
	h.notify(notice{unregister: id})
}

func (h *Hub) notify(n notice) {
	select {
	case h.notices <- n:
	case <-h.ctx.Done():
	}
}

// flushLobby waits until every notice queued so far has been delivered.
func (h *Hub) flushLobby(ctx context.Context) error {
	done := make(chan struct{})
	h.notify(notice{flushed: done})
	select {
	case <-done:
		return nil
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) runLobby() {
	for {
		select {
		case n := <-h.notices:
			h.deliver(n)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(n notice) {
	if n.flushed != nil {
		close(n.flushed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RegistryTimeout)
	defer cancel()
	if n.register != nil {
		if err := h.deps.Lobby.Register(ctx, *n.register); err != nil {
			log.Warn().Err(err).Str("session_id", n.register.SessionID).Msg("failed to register session with lobby")
		}
		return
	}
	if err := h.deps.Lobby.Unregister(ctx, n.unregister); err != nil {
		log.Warn().Err(err).Str("session_id", n.unregister).Msg("failed to unregister session from lobby")
	}
}
