package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/scenes"
	"github.com/mcdev12/crossroads/go/internal/session/events"
	"github.com/mcdev12/crossroads/go/internal/session/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const round = 30 * time.Second

func story() *scenes.MemoryProvider {
	return scenes.NewMemoryProvider(
		models.Scene{ID: "S1", Title: "Crossroads", Choices: []models.Choice{
			{ID: "X", Label: "Left", NextSceneID: "S2"},
			{ID: "Y", Label: "Right", NextSceneID: "S3"},
			{ID: "W", Label: "Wander", NextSceneID: "S404"},
		}},
		models.Scene{ID: "S2", Title: "Forest", Choices: []models.Choice{
			{ID: "A", Label: "Rest"},
			{ID: "B", Label: "Run", NextSceneID: "END"},
		}},
		models.Scene{ID: "S3", Title: "River", Choices: []models.Choice{
			{ID: "C", Label: "Swim", NextSceneID: "END"},
		}},
		models.Scene{ID: "END", Title: "The end", IsFinal: true},
	)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RoundDuration = round
	cfg.MinPlayers = 2
	cfg.IdleTimeout = 0
	return cfg
}

type fixture struct {
	s     *Session
	clock *clockwork.FakeClock
	store snapshot.Store
}

func newFixture(t *testing.T, cfg Config, store snapshot.Store) fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	provider := story()
	initial, err := provider.GetScene(context.Background(), "S1")
	require.NoError(t, err)

	s := New(context.Background(), "room-1", cfg, Dependencies{
		Scenes: provider,
		Store:  store,
		Clock:  clock,
	}, initial)
	t.Cleanup(func() {
		_ = s.Dispose(context.Background(), "test done")
		<-s.Done()
	})
	return fixture{s: s, clock: clock, store: store}
}

type client struct {
	conn   string
	out    chan events.Message
	player models.Player
}

func (f fixture) join(t *testing.T, conn, name string) *client {
	t.Helper()
	c := &client{conn: conn, out: make(chan events.Message, 64)}
	p, err := f.s.Join(context.Background(), conn, name, "", c.out)
	require.NoError(t, err)
	c.player = p
	return c
}

func (f fixture) vote(t *testing.T, c *client, choice string) {
	t.Helper()
	require.NoError(t, f.s.Vote(context.Background(), c.conn, choice))
}

func (f fixture) state(t *testing.T) events.SessionView {
	t.Helper()
	v, err := f.s.State(context.Background())
	require.NoError(t, err)
	return v
}

// waitFor skips messages until one of type typ arrives.
func waitFor(t *testing.T, c *client, typ events.Type) events.Message {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg, ok := <-c.out:
			require.True(t, ok, "outbox of %s closed while waiting for %s", c.conn, typ)
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("%s did not receive %s", c.conn, typ)
			return events.Message{}
		}
	}
}

func drain(c *client) []events.Message {
	var msgs []events.Message
	for {
		select {
		case msg, ok := <-c.out:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func payload[T any](t *testing.T, msg events.Message) T {
	t.Helper()
	p, err := events.DecodeData[T](msg)
	require.NoError(t, err)
	return p
}

func TestJoin_SnapshotToJoinerOnly(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	a := f.join(t, "c1", "Ada")
	snap := payload[events.SessionSnapshotPayload](t, waitFor(t, a, events.TypeSessionSnapshot))
	assert.Equal(t, a.player.ID.String(), snap.PlayerID)
	assert.Equal(t, a.player.Token, snap.Token)
	assert.Equal(t, models.SessionStatusWaiting, snap.Session.Status)
	require.NotNil(t, snap.Session.Scene)
	assert.Equal(t, "S1", snap.Session.Scene.ID)

	b := f.join(t, "c2", "Bob")
	joined := payload[events.PlayerJoinedPayload](t, waitFor(t, a, events.TypePlayerJoined))
	assert.Equal(t, b.player.ID.String(), joined.Player.ID)

	for _, msg := range drain(b) {
		assert.NotEqual(t, events.TypePlayerJoined, msg.Type, "joiner must not be told about itself")
	}
}

func TestAutoStartAtMinPlayers(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	a := f.join(t, "c1", "Ada")
	assert.Equal(t, models.SessionStatusWaiting, f.state(t).Status)

	b := f.join(t, "c2", "Bob")
	for _, c := range []*client{a, b} {
		started := payload[events.VotingStartedPayload](t, waitFor(t, c, events.TypeVotingStarted))
		assert.Equal(t, 1, started.Round)
		assert.Equal(t, "S1", started.SceneID)
		assert.Len(t, started.Choices, 3)
		assert.Equal(t, f.clock.Now().Add(round), started.Deadline)
	}

	v := f.state(t)
	assert.Equal(t, models.SessionStatusVoting, v.Status)
	require.NotNil(t, v.Deadline)
}

func TestVote_RepeatIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	f.join(t, "c3", "Cy")

	f.vote(t, a, "X")
	f.vote(t, a, "X")

	v := f.state(t)
	assert.Equal(t, 1, v.Votes["X"])
	assert.Equal(t, models.SessionStatusVoting, v.Status)
}

func TestVote_SwitchConservesTotal(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	f.join(t, "c3", "Cy")

	f.vote(t, a, "X")
	f.vote(t, b, "X")
	f.vote(t, a, "Y")

	v := f.state(t)
	assert.Equal(t, 1, v.Votes["X"])
	assert.Equal(t, 1, v.Votes["Y"])
	assert.Equal(t, 0, v.Votes["W"])
}

func TestVote_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.MinPlayers = 3
	f := newFixture(t, cfg, nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	err := f.s.Vote(context.Background(), a.conn, "X")
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(err), "voting is not open yet")

	f.join(t, "c3", "Cy")
	drain(a)
	drain(b)

	err = f.s.Vote(context.Background(), a.conn, "nope")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	errMsg := payload[events.ErrorPayload](t, waitFor(t, a, events.TypeError))
	assert.Equal(t, "VALIDATION", errMsg.Code)
	for _, msg := range drain(b) {
		assert.NotEqual(t, events.TypeError, msg.Type, "errors go to the originator only")
	}

	err = f.s.Vote(context.Background(), "stranger", "X")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	assert.Empty(t, f.state(t).Votes["X"])
}

func TestCompletion_Unanimity(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	f.vote(t, a, "Y")
	f.vote(t, b, "Y")

	ended := payload[events.VotingEndedPayload](t, waitFor(t, a, events.TypeVotingEnded))
	assert.Equal(t, "Y", ended.WinningChoice)
	assert.Equal(t, events.ReasonAllVoted, ended.Reason)
	assert.Equal(t, map[string]int{"X": 0, "Y": 2, "W": 0}, ended.Tally)

	changed := payload[events.SceneChangedPayload](t, waitFor(t, a, events.TypeSceneChanged))
	assert.Equal(t, "S3", changed.Scene.ID)

	started := payload[events.VotingStartedPayload](t, waitFor(t, a, events.TypeVotingStarted))
	assert.Equal(t, 2, started.Round)
	assert.Equal(t, "S3", started.SceneID)
}

func TestCompletion_TimeoutWithPartialTally(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	f.join(t, "c3", "Cy")
	waitFor(t, a, events.TypeVotingStarted)

	f.vote(t, a, "Y")
	f.clock.Advance(round - time.Second)
	assert.Equal(t, models.SessionStatusVoting, f.state(t).Status)

	f.clock.Advance(time.Second)
	ended := payload[events.VotingEndedPayload](t, waitFor(t, a, events.TypeVotingEnded))
	assert.Equal(t, "Y", ended.WinningChoice)
	assert.Equal(t, events.ReasonTimeout, ended.Reason)

	changed := payload[events.SceneChangedPayload](t, waitFor(t, a, events.TypeSceneChanged))
	assert.Equal(t, "S3", changed.Scene.ID)
}

func TestCompletion_TimeoutWithoutVotesPicksFirstChoice(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	waitFor(t, a, events.TypeVotingStarted)

	f.clock.Advance(round)
	ended := payload[events.VotingEndedPayload](t, waitFor(t, a, events.TypeVotingEnded))
	assert.Equal(t, "X", ended.WinningChoice)
}

func TestLeave_RetractsVoteAndCompletes(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	c := f.join(t, "c3", "Cy")

	f.vote(t, c, "Y")
	require.NoError(t, f.s.Leave(context.Background(), c.conn))

	_, open := <-c.out
	for open {
		_, open = <-c.out
	}

	left := payload[events.PlayerLeftPayload](t, waitFor(t, a, events.TypePlayerLeft))
	assert.Equal(t, c.player.ID.String(), left.PlayerID)
	assert.Equal(t, 0, f.state(t).Votes["Y"], "leaving retracts the ballot")

	f.vote(t, a, "X")
	f.vote(t, b, "X")
	ended := payload[events.VotingEndedPayload](t, waitFor(t, a, events.TypeVotingEnded))
	assert.Equal(t, "X", ended.WinningChoice)
	assert.Equal(t, 2, ended.Tally["X"])
	assert.Equal(t, 0, ended.Tally["Y"])
}

func TestLeave_OfLastNonVoterCompletesRound(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	c := f.join(t, "c3", "Cy")

	f.vote(t, a, "Y")
	f.vote(t, b, "Y")
	require.NoError(t, f.s.Leave(context.Background(), c.conn))

	ended := payload[events.VotingEndedPayload](t, waitFor(t, a, events.TypeVotingEnded))
	assert.Equal(t, events.ReasonAllVoted, ended.Reason)
	assert.Equal(t, "Y", ended.WinningChoice)
}

func TestTieBreak_EndToEnd(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	f.vote(t, a, "X")
	f.vote(t, b, "Y")

	ended := payload[events.VotingEndedPayload](t, waitFor(t, b, events.TypeVotingEnded))
	assert.Equal(t, "X", ended.WinningChoice, "X is declared before Y")
	changed := payload[events.SceneChangedPayload](t, waitFor(t, b, events.TypeSceneChanged))
	assert.Equal(t, "S2", changed.Scene.ID)
	waitFor(t, b, events.TypeVotingStarted)

	v := f.state(t)
	assert.Equal(t, models.SessionStatusVoting, v.Status)
	assert.Equal(t, "S2", v.Scene.ID)
	assert.Equal(t, 2, v.Round)
}

func TestStory_RunsToFinalScene(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	f.vote(t, a, "X")
	f.vote(t, b, "X")
	waitFor(t, a, events.TypeVotingStarted)
	f.vote(t, a, "B")
	f.vote(t, b, "B")

	changed := payload[events.SceneChangedPayload](t, waitFor(t, a, events.TypeSceneChanged))
	assert.Equal(t, "S2", changed.Scene.ID)
	changed = payload[events.SceneChangedPayload](t, waitFor(t, a, events.TypeSceneChanged))
	assert.Equal(t, "END", changed.Scene.ID)
	ended := payload[events.SessionEndedPayload](t, waitFor(t, a, events.TypeSessionEnded))
	assert.Equal(t, events.EndFinalScene, ended.Reason)
	assert.Equal(t, 2, ended.FinalTally["B"])
}

func TestStory_ChoiceWithoutNextSceneEnds(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	f.vote(t, a, "X")
	f.vote(t, b, "X")
	waitFor(t, a, events.TypeVotingStarted)

	f.vote(t, a, "A")
	f.vote(t, b, "A")
	ended := payload[events.SessionEndedPayload](t, waitFor(t, a, events.TypeSessionEnded))
	assert.Equal(t, events.EndStoryComplete, ended.Reason)
	assert.Equal(t, models.SessionStatusEnded, f.state(t).Status)
}

func TestMissingNextSceneEndsGracefully(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	f.vote(t, a, "W")
	f.vote(t, b, "W")

	ended := payload[events.SessionEndedPayload](t, waitFor(t, a, events.TypeSessionEnded))
	assert.Equal(t, events.EndSceneNotFound, ended.Reason)
	assert.Equal(t, "S1", ended.SceneID)
}

func TestEnded_RejectsCommands(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")

	require.NoError(t, f.s.LoadScene(context.Background(), "END"))
	waitFor(t, a, events.TypeSessionEnded)

	ctx := context.Background()
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(f.s.Vote(ctx, a.conn, "X")))
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(f.s.StartVoting(ctx)))
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(f.s.LoadScene(ctx, "S1")))

	late := f.join(t, "c3", "Late")
	snap := payload[events.SessionSnapshotPayload](t, waitFor(t, late, events.TypeSessionSnapshot))
	assert.Equal(t, models.SessionStatusEnded, snap.Session.Status)
	require.NoError(t, f.s.Leave(ctx, late.conn))
}

func TestEnded_LastLeaveDisposes(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	require.NoError(t, f.s.LoadScene(context.Background(), "END"))

	require.NoError(t, f.s.Leave(context.Background(), a.conn))
	require.NoError(t, f.s.Leave(context.Background(), b.conn))

	select {
	case <-f.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not disposed")
	}
}

func TestLoadScene_NotFound(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	err := f.s.LoadScene(context.Background(), "nowhere")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.True(t, errors.Is(err, scenes.ErrSceneNotFound))
	assert.Equal(t, "S1", f.state(t).Scene.ID)
}

func TestLoadScene_ResetsRound(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	f.vote(t, a, "X")

	require.NoError(t, f.s.LoadScene(context.Background(), "S3"))

	changed := payload[events.SceneChangedPayload](t, waitFor(t, a, events.TypeSceneChanged))
	assert.Equal(t, "S3", changed.Scene.ID)
	started := payload[events.VotingStartedPayload](t, waitFor(t, a, events.TypeVotingStarted))
	assert.Equal(t, 2, started.Round)
	assert.Equal(t, 0, f.state(t).Votes["C"])
}

func TestStaleTimerFiringIsIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")

	f.vote(t, a, "X")
	f.vote(t, b, "X")
	waitFor(t, a, events.TypeVotingStarted)
	waitFor(t, a, events.TypeVotingStarted)

	// The first round's timer was generation 1.
	f.s.enqueue(timerExpired{generation: 1})

	v := f.state(t)
	assert.Equal(t, models.SessionStatusVoting, v.Status)
	assert.Equal(t, 2, v.Round)
	assert.Equal(t, "S2", v.Scene.ID)
}

func TestManualStartPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.StartPolicy = models.StartPolicyManual
	f := newFixture(t, cfg, nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")

	assert.Equal(t, models.SessionStatusWaiting, f.state(t).Status)
	err := f.s.RequestStart(context.Background(), "stranger")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	require.NoError(t, f.s.RequestStart(context.Background(), a.conn))
	waitFor(t, a, events.TypeVotingStarted)

	err = f.s.RequestStart(context.Background(), a.conn)
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(err))
}

func TestAutoPolicyRejectsClientStart(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")

	err := f.s.RequestStart(context.Background(), a.conn)
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(err))

	require.NoError(t, f.s.StartVoting(context.Background()), "the admin API may start any time")
	waitFor(t, a, events.TypeVotingStarted)
}

func TestSlowClientIsDropped(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")

	slow := &client{conn: "slow", out: make(chan events.Message, 1)}
	_, err := f.s.Join(context.Background(), slow.conn, "Sloth", "", slow.out)
	require.NoError(t, err)

	left := payload[events.PlayerLeftPayload](t, waitFor(t, a, events.TypePlayerLeft))
	assert.NotEmpty(t, left.PlayerID)

	<-slow.out
	_, open := <-slow.out
	assert.False(t, open, "outbox of a dropped client is closed")

	v := f.state(t)
	connected := 0
	for _, p := range v.Players {
		if p.Connected {
			connected++
		}
	}
	assert.Equal(t, 1, connected)
}

func TestReconnectKeepsPlayerID(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	require.NoError(t, f.s.Leave(context.Background(), a.conn))

	out := make(chan events.Message, 64)
	p, err := f.s.Join(context.Background(), "c1b", "", a.player.Token, out)
	require.NoError(t, err)
	assert.Equal(t, a.player.ID, p.ID)

	back := &client{conn: "c1b", out: out}
	snap := payload[events.SessionSnapshotPayload](t, waitFor(t, back, events.TypeSessionSnapshot))
	assert.True(t, snap.Reconnected)

	_, err = f.s.Join(context.Background(), a.conn, "Ada", "", make(chan events.Message, 1))
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(err), "closed connections cannot rejoin")
}

func TestDispose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	provider := story()
	initial, _ := provider.GetScene(context.Background(), "S1")
	s := New(context.Background(), "room-2", testConfig(), Dependencies{Scenes: provider, Clock: clock}, initial)

	out := make(chan events.Message, 8)
	_, err := s.Join(context.Background(), "c1", "Ada", "", out)
	require.NoError(t, err)

	require.NoError(t, s.Dispose(context.Background(), "admin"))
	<-s.Done()

	for range out {
	}
	err = s.Vote(context.Background(), "c1", "X")
	assert.True(t, errors.Is(err, ErrSessionClosed))
	assert.Equal(t, apperr.CodeState, apperr.CodeOf(err))
}

func TestReleaseForgetsClosedConnection(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	a := f.join(t, "c1", "Ada")
	b := f.join(t, "c2", "Bob")
	require.NoError(t, f.s.Leave(context.Background(), a.conn))

	_, err := f.s.Join(context.Background(), a.conn, "Ada", "", make(chan events.Message, 1))
	require.Equal(t, apperr.CodeState, apperr.CodeOf(err))

	require.NoError(t, f.s.Release(context.Background(), a.conn))
	_, err = f.s.Join(context.Background(), a.conn, "Cleo", "", make(chan events.Message, 64))
	assert.NoError(t, err, "a released id may join again")

	require.NoError(t, f.s.Release(context.Background(), b.conn))
	drain(b)
	_, open := <-b.out
	assert.False(t, open, "releasing a joined connection disconnects it")

	assert.NoError(t, f.s.Release(context.Background(), "never-joined"))
}

func TestDisposeReasonDecidesSnapshotFate(t *testing.T) {
	tests := []struct {
		name string
		stop func(t *testing.T, s *Session, clock *clockwork.FakeClock, cancel context.CancelFunc)
		kept bool
	}{
		{
			name: "removed",
			stop: func(t *testing.T, s *Session, _ *clockwork.FakeClock, _ context.CancelFunc) {
				require.NoError(t, s.Dispose(context.Background(), "removed"))
			},
		},
		{
			name: "idle",
			stop: func(t *testing.T, s *Session, clock *clockwork.FakeClock, _ context.CancelFunc) {
				require.NoError(t, s.Leave(context.Background(), "c1"))
				clock.Advance(2 * time.Minute)
			},
		},
		{
			name: "shutdown",
			stop: func(t *testing.T, s *Session, _ *clockwork.FakeClock, _ context.CancelFunc) {
				require.NoError(t, s.Dispose(context.Background(), ReasonShutdown))
			},
			kept: true,
		},
		{
			name: "context cancelled",
			stop: func(t *testing.T, _ *Session, _ *clockwork.FakeClock, cancel context.CancelFunc) {
				cancel()
			},
			kept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.IdleTimeout = time.Minute
			clock := clockwork.NewFakeClock()
			store := snapshot.NewMemoryStore()
			provider := story()
			initial, err := provider.GetScene(context.Background(), "S1")
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s := New(ctx, "room-3", cfg, Dependencies{Scenes: provider, Store: store, Clock: clock}, initial)

			_, err = s.Join(context.Background(), "c1", "Ada", "", make(chan events.Message, 64))
			require.NoError(t, err)
			_, err = s.State(context.Background())
			require.NoError(t, err)
			_, err = store.Load(context.Background(), "room-3")
			require.NoError(t, err, "joining saves a snapshot")

			tt.stop(t, s, clock, cancel)
			select {
			case <-s.Done():
			case <-time.After(time.Second):
				t.Fatal("session did not stop")
			}

			_, err = store.Load(context.Background(), "room-3")
			if tt.kept {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
			}
		})
	}
}

func TestIdleSessionIsDisposed(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = time.Minute
	f := newFixture(t, cfg, nil)

	a := f.join(t, "c1", "Ada")
	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.s.Leave(context.Background(), a.conn))

	f.clock.Advance(time.Minute)
	select {
	case <-f.s.Done():
	case <-time.After(time.Second):
		t.Fatal("idle session was not disposed")
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	store := snapshot.NewMemoryStore()
	f := newFixture(t, testConfig(), store)
	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	waitFor(t, a, events.TypeVotingStarted)

	blob, err := store.Load(context.Background(), "room-1")
	require.NoError(t, err)
	st, err := snapshot.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusVoting, st.Status)
	assert.Equal(t, "S1", st.SceneID)
	assert.Equal(t, 1, st.Round)
	require.Len(t, st.Players, 2)

	provider := story()
	scene, err := provider.GetScene(context.Background(), st.SceneID)
	require.NoError(t, err)
	restored := Restore(context.Background(), testConfig(), Dependencies{Scenes: provider, Clock: clockwork.NewFakeClock()}, st, scene)
	t.Cleanup(func() { _ = restored.Dispose(context.Background(), "") })

	v, err := restored.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusWaiting, v.Status)
	assert.Equal(t, 1, v.Round)
	require.Len(t, v.Players, 2)
	for _, p := range v.Players {
		assert.False(t, p.Connected)
	}

	out := make(chan events.Message, 64)
	p, err := restored.Join(context.Background(), "c9", "", a.player.Token, out)
	require.NoError(t, err)
	assert.Equal(t, a.player.ID, p.ID)
}

type failingStore struct {
	saves atomic.Int32
}

func (f *failingStore) Save(context.Context, string, []byte) error {
	f.saves.Add(1)
	return errors.New("disk on fire")
}
func (f *failingStore) Load(context.Context, string) ([]byte, error) {
	return nil, snapshot.ErrSnapshotNotFound
}
func (f *failingStore) Delete(context.Context, string) error { return nil }

func TestSnapshotFailureDegradesWithoutBreakingSession(t *testing.T) {
	store := &failingStore{}
	f := newFixture(t, testConfig(), store)

	assert.Equal(t, int32(2), store.saves.Load(), "one save plus one retry")

	a := f.join(t, "c1", "Ada")
	f.join(t, "c2", "Bob")
	waitFor(t, a, events.TypeVotingStarted)

	assert.Equal(t, int32(2), store.saves.Load(), "no further saves once degraded")
}
