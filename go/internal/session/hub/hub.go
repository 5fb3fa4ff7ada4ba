// Package hub owns the set of live sessions, one per room id.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/mcdev12/crossroads/go/internal/session/lobby"
	"github.com/mcdev12/crossroads/go/internal/session/snapshot"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// ErrSessionExists is wrapped when creating a room id that is already live.
var ErrSessionExists = errors.New("session already exists")

// Config holds hub settings.
type Config struct {
	Session session.Config
	// AutoCreate lets Ensure create unknown rooms on InitialSceneID.
	AutoCreate     bool
	InitialSceneID string
	// Node identifies this process in lobby registrations.
	Node            string
	RegistryTimeout time.Duration
}

// Dependencies are shared by every session of the hub.
type Dependencies struct {
	Scenes session.SceneProvider
	Store  snapshot.Store  // optional
	Lobby  lobby.Registry  // optional
	Clock  clockwork.Clock // optional
}

// Hub maps room ids to sessions. The mutex only guards the map; scene and
// snapshot lookups run outside it.
type Hub struct {
	ctx  context.Context
	cfg  Config
	deps Dependencies

	mu       deadlock.Mutex
	sessions map[string]*session.Session
	// pending holds rooms being created; the channel closes once the
	// creator has published or given up.
	pending map[string]chan struct{}

	notices chan notice
}

func New(ctx context.Context, cfg Config, deps Dependencies) *Hub {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Lobby == nil {
		deps.Lobby = lobby.NoopRegistry{}
	}
	if cfg.RegistryTimeout <= 0 {
		cfg.RegistryTimeout = 5 * time.Second
	}
	h := &Hub{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*session.Session),
		pending:  make(map[string]chan struct{}),
		notices:  make(chan notice, 256),
	}
	go h.runLobby()
	return h
}

// Create starts a session for id on initialSceneID, or on the configured
// initial scene when it is empty. A stored snapshot for id takes precedence
// over the initial scene unless it has already ended.
func (h *Hub) Create(ctx context.Context, id, initialSceneID string) (*session.Session, error) {
	if id == "" {
		return nil, apperr.Validation("session id is required")
	}
	if initialSceneID == "" {
		initialSceneID = h.cfg.InitialSceneID
	}
	if err := h.reserve(id); err != nil {
		return nil, err
	}

	s, sceneID, err := h.open(ctx, id, initialSceneID)
	if err != nil {
		h.release(id, nil)
		return nil, err
	}
	// Registration is queued before the session is visible, so its
	// unregistration can never overtake it.
	h.register(lobby.Metadata{
		SessionID: id,
		SceneID:   sceneID,
		Node:      h.cfg.Node,
		CreatedAt: h.deps.Clock.Now().UTC(),
	})
	h.release(id, s)

	go h.watch(s)
	log.Info().Str("session_id", id).Str("scene_id", sceneID).Msg("session created")
	return s, nil
}

func (h *Hub) reserve(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, live := h.sessions[id]
	_, creating := h.pending[id]
	if live || creating {
		return apperr.Wrap(apperr.CodeState, fmt.Sprintf("session %s already exists", id), ErrSessionExists)
	}
	h.pending[id] = make(chan struct{})
	return nil
}

func (h *Hub) release(id string, s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if wait, ok := h.pending[id]; ok {
		close(wait)
		delete(h.pending, id)
	}
	if s != nil {
		h.sessions[id] = s
	}
}

// open returns the new session and the scene it is on.
func (h *Hub) open(ctx context.Context, id, initialSceneID string) (*session.Session, string, error) {
	deps := session.Dependencies{Scenes: h.deps.Scenes, Store: h.deps.Store, Clock: h.deps.Clock}

	if st, ok := h.loadSnapshot(ctx, id); ok {
		scene, err := h.deps.Scenes.GetScene(ctx, st.SceneID)
		if err == nil {
			return session.Restore(h.ctx, h.cfg.Session, deps, st, scene), scene.ID, nil
		}
		log.Warn().Err(err).Str("session_id", id).Msg("snapshot scene unavailable, starting fresh")
	}

	if initialSceneID == "" {
		return nil, "", apperr.Validation("initial scene id is required")
	}
	scene, err := h.deps.Scenes.GetScene(ctx, initialSceneID)
	if err != nil {
		return nil, "", err
	}
	return session.New(h.ctx, id, h.cfg.Session, deps, scene), scene.ID, nil
}

func (h *Hub) loadSnapshot(ctx context.Context, id string) (snapshot.State, bool) {
	if h.deps.Store == nil {
		return snapshot.State{}, false
	}
	blob, err := h.deps.Store.Load(ctx, id)
	if errors.Is(err, snapshot.ErrSnapshotNotFound) {
		return snapshot.State{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("failed to load snapshot")
		return snapshot.State{}, false
	}
	st, err := snapshot.Decode(blob)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("discarding unreadable snapshot")
		return snapshot.State{}, false
	}
	if st.Status.IsTerminal() {
		return snapshot.State{}, false
	}
	return st, true
}

// Get returns the live session for id.
func (h *Hub) Get(id string) (*session.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Ensure returns the session for id, creating it when AutoCreate is on.
func (h *Hub) Ensure(ctx context.Context, id string) (*session.Session, error) {
	for {
		if s, ok := h.Get(id); ok {
			return s, nil
		}
		if !h.cfg.AutoCreate {
			return nil, apperr.NotFound("session %s not found", id)
		}
		s, err := h.Create(ctx, id, "")
		if !errors.Is(err, ErrSessionExists) {
			return s, err
		}

		// Lost a race with another creator; wait for it to finish.
		h.mu.Lock()
		wait, creating := h.pending[id]
		h.mu.Unlock()
		if !creating {
			continue
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// List returns the live room ids, sorted.
func (h *Hub) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Remove disposes the session for id and waits for it to stop.
func (h *Hub) Remove(ctx context.Context, id string) error {
	s, ok := h.Get(id)
	if !ok {
		return apperr.NotFound("session %s not found", id)
	}
	if err := s.Dispose(ctx, "removed"); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		return err
	}
	select {
	case <-s.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	h.forget(id, s)
	return nil
}

// Shutdown disposes every session and waits for them to stop.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	live := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		if err := s.Dispose(ctx, session.ReasonShutdown); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			log.Warn().Err(err).Str("session_id", s.ID()).Msg("failed to dispose session")
		}
	}
	for _, s := range live {
		select {
		case <-s.Done():
			h.forget(s.ID(), s)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := h.flushLobby(ctx); err != nil {
		return err
	}
	log.Info().Int("sessions", len(live)).Msg("hub shut down")
	return nil
}

func (h *Hub) watch(s *session.Session) {
	<-s.Done()
	h.forget(s.ID(), s)
}

// forget drops s from the map once; later calls are no-ops.
func (h *Hub) forget(id string, s *session.Session) {
	h.mu.Lock()
	current, ok := h.sessions[id]
	if ok && current == s {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if ok && current == s {
		h.unregister(id)
		log.Info().Str("session_id", id).Msg("session removed from hub")
	}
}
