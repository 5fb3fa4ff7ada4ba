package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/mcdev12/crossroads/go/internal/session/events"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

// ConnectionManager upgrades WebSocket requests and pumps messages between
// sockets and sessions.
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[string]map[*Connection]bool
	mu                 deadlock.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one client socket attached to a session.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Manager   *ConnectionManager

	// Send is the outbox handed to the session on join. The session owns it
	// and closes it when the player leaves, is dropped or the session ends.
	Send chan events.Message
	// local carries errors the gateway reports itself.
	local   chan events.Message
	closed  chan struct{}
	session *session.Session
	limiter *rate.Limiter
	joined  bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	// MessageRate and MessageBurst bound inbound messages per connection.
	MessageRate  rate.Limit
	MessageBurst int
	CallTimeout  time.Duration
	CheckOrigin  func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		MessageRate:     rate.Limit(10),
		MessageBurst:    20,
		CallTimeout:     5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Serve upgrades the request and attaches the socket to sess. The client
// still has to send a join message before it takes part.
func (cm *ConnectionManager) Serve(w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.NewString(),
		SessionID:   sess.ID(),
		Conn:        conn,
		Manager:     cm,
		Send:        make(chan events.Message, cm.config.SendBuffer),
		local:       make(chan events.Message, 8),
		closed:      make(chan struct{}),
		session:     sess,
		limiter:     rate.NewLimiter(cm.config.MessageRate, cm.config.MessageBurst),
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[c.SessionID] == nil {
		cm.sessionConnections[c.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[c.SessionID][c] = true
}

func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.sessionConnections[c.SessionID]
	if !ok {
		return
	}
	if _, ok := connections[c]; !ok {
		return
	}
	delete(connections, c)
	if len(connections) == 0 {
		delete(cm.sessionConnections, c.SessionID)
	}
	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Msg("connection unregistered")
}

// ConnectionStats summarizes the open sockets.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveSessions:     len(cm.sessionConnections),
		SessionConnections: make(map[string]int, len(cm.sessionConnections)),
	}
	for id, connections := range cm.sessionConnections {
		stats.TotalConnections += len(connections)
		stats.SessionConnections[id] = len(connections)
	}
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				c.writeClose()
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case msg := <-c.local:
			if err := c.write(msg); err != nil {
				return
			}
		case <-c.closed:
			// Flush pending local errors before hanging up.
			for {
				select {
				case msg := <-c.local:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					c.writeClose()
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) write(msg events.Message) error {
	data, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode message")
		return nil
	}
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
		return err
	}
	return nil
}

func (c *Connection) writeClose() {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Connection) readPump() {
	defer func() {
		c.leave()
		close(c.closed)
		c.Manager.unregisterConnection(c)
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.limiter.Allow() {
			c.reportLocal(apperr.Validation("too many messages"))
			continue
		}
		if !c.dispatch(raw) {
			return
		}
	}
}

// dispatch forwards one inbound message to the session. It returns false
// once the connection should stop reading.
func (c *Connection) dispatch(raw []byte) bool {
	in, err := events.DecodeInbound(raw)
	if err != nil {
		c.reportLocal(err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CallTimeout)
	defer cancel()

	switch in.Type {
	case events.InboundJoin:
		_, err = c.session.Join(ctx, c.ID, in.Name, in.Token, c.Send)
		if err == nil {
			c.joined = true
			return true
		}
	case events.InboundVote:
		err = c.session.Vote(ctx, c.ID, in.ChoiceID)
	case events.InboundStartVoting:
		err = c.session.RequestStart(ctx, c.ID)
	case events.InboundLeave:
		if err = c.session.Leave(ctx, c.ID); err == nil {
			c.joined = false
			return false
		}
	}
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, session.ErrSessionClosed):
		c.reportLocal(err)
		return false
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Str("connection_id", c.ID).Str("type", string(in.Type)).Msg("session did not answer in time")
		c.reportLocal(apperr.New(apperr.CodeInternal, "session timeout"))
	case !c.joined:
		// The session only reports errors to joined connections and to
		// rejected joins itself.
		if in.Type != events.InboundJoin {
			c.reportLocal(err)
		}
	}
	return true
}

func (c *Connection) reportLocal(err error) {
	select {
	case c.local <- events.ErrorMessage(c.SessionID, err, time.Now()):
	default:
	}
}

// leave releases the connection from its session once reading has stopped.
func (c *Connection) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CallTimeout)
	defer cancel()
	err := c.session.Release(ctx, c.ID)
	if err != nil && !errors.Is(err, session.ErrSessionClosed) {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to leave session")
	}
	c.joined = false
}
