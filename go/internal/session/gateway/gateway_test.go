package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/scenes"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/mcdev12/crossroads/go/internal/session/events"
	"github.com/mcdev12/crossroads/go/internal/session/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, autoCreate bool) (*httptest.Server, *hub.Hub) {
	t.Helper()
	provider := scenes.NewMemoryProvider(
		models.Scene{ID: "start", Title: "Start", Choices: []models.Choice{
			{ID: "left", Label: "Left", NextSceneID: "end"},
			{ID: "right", Label: "Right", NextSceneID: "end"},
		}},
		models.Scene{ID: "end", Title: "End", IsFinal: true},
	)

	sessCfg := session.DefaultConfig()
	sessCfg.RoundDuration = time.Minute
	sessCfg.MinPlayers = 2
	sessCfg.IdleTimeout = 0

	h := hub.New(context.Background(), hub.Config{
		Session:        sessCfg,
		AutoCreate:     autoCreate,
		InitialSceneID: "start",
	}, hub.Dependencies{Scenes: provider})

	srv := httptest.NewServer(NewService(DefaultConfig(), h).Routes())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return srv, h
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := do(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[HealthResponse](t, resp).Status)
}

func TestSessionAPI(t *testing.T) {
	srv, h := newServer(t, false)
	base := srv.URL + "/api/sessions"

	resp := do(t, http.MethodPost, base, CreateSessionRequest{SessionID: "room-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[events.SessionView](t, resp)
	assert.Equal(t, "room-1", view.SessionID)
	assert.Equal(t, models.SessionStatusWaiting, view.Status)

	resp = do(t, http.MethodPost, base, CreateSessionRequest{SessionID: "room-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "STATE", string(decode[ErrorResponse](t, resp).Code))

	resp = do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"room-1"}, decode[SessionListResponse](t, resp).Sessions)

	resp = do(t, http.MethodGet, base+"/missing/state", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/room-1/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[events.SessionView](t, resp)
	assert.Equal(t, models.SessionStatusVoting, view.Status)
	assert.Equal(t, 1, view.Round)

	resp = do(t, http.MethodPost, base+"/room-1/scene", LoadSceneRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/room-1/scene", LoadSceneRequest{SceneID: "nowhere"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/room-1/scene", LoadSceneRequest{SceneID: "start"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SessionStatusWaiting, decode[events.SessionView](t, resp).Status)

	resp = do(t, http.MethodDelete, base+"/room-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok := h.Get("room-1")
	assert.False(t, ok)

	resp = do(t, http.MethodDelete, base+"/room-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSession_GeneratesID(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := do(t, http.MethodPost, srv.URL+"/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[events.SessionView](t, resp)
	assert.NotEmpty(t, view.SessionID)
	require.NotNil(t, view.Scene)
	assert.Equal(t, "start", view.Scene.ID)
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, in events.Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ events.Type) events.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		msg, err := events.Decode(raw)
		require.NoError(t, err)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	srv, _ := newServer(t, true)

	alice := dial(t, srv, "room-1")
	send(t, alice, events.Inbound{Type: events.InboundJoin, Name: "Alice"})
	snap, err := events.DecodeData[events.SessionSnapshotPayload](readUntil(t, alice, events.TypeSessionSnapshot))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Token)
	assert.Equal(t, models.SessionStatusWaiting, snap.Session.Status)

	bob := dial(t, srv, "room-1")
	send(t, bob, events.Inbound{Type: events.InboundJoin, Name: "Bob"})
	readUntil(t, bob, events.TypeSessionSnapshot)

	readUntil(t, alice, events.TypeVotingStarted)
	readUntil(t, bob, events.TypeVotingStarted)

	send(t, alice, events.Inbound{Type: events.InboundVote, ChoiceID: "right"})
	send(t, bob, events.Inbound{Type: events.InboundVote, ChoiceID: "right"})

	ended, err := events.DecodeData[events.VotingEndedPayload](readUntil(t, alice, events.TypeVotingEnded))
	require.NoError(t, err)
	assert.Equal(t, "right", ended.WinningChoice)
	assert.Equal(t, events.ReasonAllVoted, ended.Reason)

	readUntil(t, bob, events.TypeSessionEnded)
}

func TestWebSocket_ReportsBadMessages(t *testing.T) {
	srv, _ := newServer(t, true)
	conn := dial(t, srv, "room-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	payload, err := events.DecodeData[events.ErrorPayload](readUntil(t, conn, events.TypeError))
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION", payload.Code)

	// Voting before joining is reported by the gateway.
	send(t, conn, events.Inbound{Type: events.InboundVote, ChoiceID: "left"})
	payload, err = events.DecodeData[events.ErrorPayload](readUntil(t, conn, events.TypeError))
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION", payload.Code)
}

func TestWebSocket_UnknownSession(t *testing.T) {
	srv, _ := newServer(t, false)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectionStats(t *testing.T) {
	srv, _ := newServer(t, true)
	dial(t, srv, "room-1")

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/ws/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var stats ConnectionStats
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}
		return stats.TotalConnections == 1 && stats.SessionConnections["room-1"] == 1
	}, time.Second, 10*time.Millisecond)
}
