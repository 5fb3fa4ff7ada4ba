// Package session implements the authoritative state machine of one voting
// room. Each Session runs a single goroutine that owns all of its state and
// consumes commands from a buffered inbox; client actions, admin actions and
// timer firings all arrive as commands, so handlers never race.
package session

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/session/events"
	"github.com/mcdev12/crossroads/go/internal/session/players"
	"github.com/mcdev12/crossroads/go/internal/session/snapshot"
	"github.com/mcdev12/crossroads/go/internal/session/tally"
	"github.com/mcdev12/crossroads/go/internal/session/timer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSessionClosed is wrapped by every call made after a session was disposed.
var ErrSessionClosed = errors.New("session is closed")

// ReasonShutdown disposes a session while keeping its snapshot, so the room
// can be restored by the next process. Any other reason deletes the snapshot.
const ReasonShutdown = "shutdown"

func closedError() error {
	return apperr.Wrap(apperr.CodeState, "session is closed", ErrSessionClosed)
}

// SceneProvider looks up scenes when the session loads or transitions.
type SceneProvider interface {
	GetScene(ctx context.Context, sceneID string) (models.Scene, error)
}

// Dependencies are the collaborators of a session.
type Dependencies struct {
	Scenes SceneProvider
	Store  snapshot.Store  // optional
	Clock  clockwork.Clock // defaults to the real clock
}

// Session is one room's coordinator.
type Session struct {
	id    string
	cfg   Config
	deps  Dependencies
	clock clockwork.Clock
	log   zerolog.Logger

	inbox  chan command
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// Everything below is owned by the loop goroutine.
	status   models.SessionStatus
	scene    models.Scene
	round    int
	players  *players.Registry
	tally    *tally.Tally
	outboxes map[string]chan<- events.Message
	closed   map[string]bool
	dropped  []string
	vote     *timer.Timer
	idle     *timer.Timer
	dirty    bool
	degraded bool
	disposed bool
	reason   string
}

// New starts a session in Waiting on the initial scene.
func New(parent context.Context, id string, cfg Config, deps Dependencies, initial models.Scene) *Session {
	s := newSession(parent, id, cfg, deps)
	s.scene = initial
	s.status = models.SessionStatusWaiting
	if initial.IsFinal {
		s.status = models.SessionStatusEnded
	}
	s.start()
	return s
}

// Restore starts a session from a stored snapshot. Timers and ballots are not
// persisted, so a snapshot taken mid-round restores as Waiting on the same
// scene, and every player comes back disconnected until it reconnects with
// its token.
func Restore(parent context.Context, cfg Config, deps Dependencies, st snapshot.State, scene models.Scene) *Session {
	s := newSession(parent, st.SessionID, cfg, deps)
	s.scene = scene
	s.round = st.Round
	s.status = models.SessionStatusWaiting
	if st.Status == models.SessionStatusEnded || scene.IsFinal {
		s.status = models.SessionStatusEnded
	}
	for _, rec := range st.Players {
		s.players.Restore(rec.Player())
	}
	s.log.Info().
		Str("status", string(s.status)).
		Str("scene_id", scene.ID).
		Int("players", len(st.Players)).
		Msg("session restored from snapshot")
	s.start()
	return s
}

func newSession(parent context.Context, id string, cfg Config, deps Dependencies) *Session {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		clock:    deps.Clock,
		log:      log.With().Str("session_id", id).Logger(),
		inbox:    make(chan command, cfg.InboxSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		players:  players.NewRegistry(deps.Clock),
		tally:    tally.New(),
		outboxes: make(map[string]chan<- events.Message),
		closed:   make(map[string]bool),
	}
	s.vote = timer.New(s.clock, func(gen uint64) { s.enqueue(timerExpired{generation: gen}) })
	s.idle = timer.New(s.clock, func(gen uint64) { s.enqueue(idleExpired{generation: gen}) })
	return s
}

func (s *Session) start() {
	s.armIdle()
	s.dirty = true
	s.persist()
	go s.loop()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RoundDuration <= 0 {
		c.RoundDuration = d.RoundDuration
	}
	if !c.StartPolicy.Valid() {
		c.StartPolicy = d.StartPolicy
	}
	if c.MinPlayers < 1 {
		c.MinPlayers = 1
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.SceneTimeout <= 0 {
		c.SceneTimeout = d.SceneTimeout
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = d.SaveTimeout
	}
	return c
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Join binds a connection to a player and registers outbox for its messages.
// The session closes outbox when the connection leaves, is dropped or the
// session is disposed; the caller must never close it.
func (s *Session) Join(ctx context.Context, connectionID, name, token string, outbox chan<- events.Message) (models.Player, error) {
	r, err := s.call(ctx, func(reply chan result) command {
		return joinCmd{connectionID: connectionID, name: name, token: token, outbox: outbox, reply: reply}
	})
	return r.player, err
}

// Leave disconnects a connection's player.
func (s *Session) Leave(ctx context.Context, connectionID string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return leaveCmd{connectionID: connectionID, reply: reply}
	})
	return err
}

// Release is the transport's last call for a connection. It disconnects the
// player if still joined and forgets the id, which may then join again with
// a new outbox.
func (s *Session) Release(ctx context.Context, connectionID string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return leaveCmd{connectionID: connectionID, release: true, reply: reply}
	})
	return err
}

// Vote casts or moves the ballot of a connection's player.
func (s *Session) Vote(ctx context.Context, connectionID, choiceID string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return voteCmd{connectionID: connectionID, choiceID: choiceID, reply: reply}
	})
	return err
}

// RequestStart is a player's startVoting. It is only honoured under StartPolicyManual.
func (s *Session) RequestStart(ctx context.Context, connectionID string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return startCmd{connectionID: connectionID, reply: reply}
	})
	return err
}

// StartVoting opens a round on behalf of the admin API, whatever the start policy.
func (s *Session) StartVoting(ctx context.Context) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return startCmd{reply: reply}
	})
	return err
}

// LoadScene jumps to a scene, abandoning any open round.
func (s *Session) LoadScene(ctx context.Context, sceneID string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return loadSceneCmd{sceneID: sceneID, reply: reply}
	})
	return err
}

// State returns a consistent view of the session.
func (s *Session) State(ctx context.Context) (events.SessionView, error) {
	r, err := s.call(ctx, func(reply chan result) command {
		return stateCmd{reply: reply}
	})
	return r.view, err
}

// Dispose stops the session. Connected clients have their outboxes closed.
func (s *Session) Dispose(ctx context.Context, reason string) error {
	_, err := s.call(ctx, func(reply chan result) command {
		return disposeCmd{reason: reason, reply: reply}
	})
	return err
}

func (s *Session) call(ctx context.Context, build func(chan result) command) (result, error) {
	reply := make(chan result, 1)
	if err := s.submit(ctx, build(reply)); err != nil {
		return result{}, err
	}
	select {
	case r := <-reply:
		return r, r.err
	case <-s.done:
		select {
		case r := <-reply:
			return r, r.err
		default:
			return result{}, closedError()
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (s *Session) submit(ctx context.Context, cmd command) error {
	select {
	case <-s.done:
		return closedError()
	default:
	}
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.done:
		return closedError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is used by timer goroutines.
func (s *Session) enqueue(cmd command) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			s.reason = ReasonShutdown
			return
		case cmd := <-s.inbox:
			s.handle(cmd)
			s.flushDropped()
			if s.dirty {
				s.persist()
			}
			if s.disposed {
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	s.vote.Cancel()
	s.idle.Cancel()
	for id := range s.outboxes {
		s.closeOutbox(id)
	}

	if s.reason != ReasonShutdown && s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
		if err := s.deps.Store.Delete(ctx, s.id); err != nil {
			s.log.Warn().Err(err).Msg("failed to delete snapshot of disposed session")
		}
		cancel()
	}

	s.cancel()
	close(s.done)
	s.log.Info().Str("reason", s.reason).Msg("session disposed")
}

func (s *Session) handle(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		p, err := s.handleJoin(c)
		c.reply <- result{player: p, err: err}
	case leaveCmd:
		err := s.disconnect(c.connectionID)
		if c.release {
			delete(s.closed, c.connectionID)
			err = nil
		}
		c.reply <- result{err: err}
	case voteCmd:
		err := s.handleVote(c.connectionID, c.choiceID)
		s.sendError(c.connectionID, err)
		c.reply <- result{err: err}
	case startCmd:
		err := s.handleStart(c.connectionID)
		s.sendError(c.connectionID, err)
		c.reply <- result{err: err}
	case loadSceneCmd:
		c.reply <- result{err: s.handleLoadScene(c.sceneID)}
	case stateCmd:
		c.reply <- result{view: s.view()}
	case disposeCmd:
		s.dispose(c.reason)
		c.reply <- result{}
	case timerExpired:
		s.handleTimer(c.generation)
	case idleExpired:
		s.handleIdle(c.generation)
	default:
		s.log.Error().Type("command", cmd).Msg("unknown session command")
	}
}
