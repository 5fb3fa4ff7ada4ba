package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Lobby event types, used as the last subject token.
const (
	EventRegistered   = "registered"
	EventUnregistered = "unregistered"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep lobby events
	DuplicateWindow time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SESSION_LOBBY",
		SubjectPrefix:   "session.lobby",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		MaxRetries:      3,
		RetryDelay:      200 * time.Millisecond,
	}
}

// Envelope is the JSON body of every lobby event.
type Envelope struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// JetStreamRegistry publishes lobby events to a JetStream stream.
type JetStreamRegistry struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamRegistry(ctx context.Context, cfg JetStreamConfig) (*JetStreamRegistry, error) {
	opts := []nats.Option{
		nats.Name("crossroads-lobby"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	r := &JetStreamRegistry{nc: nc, js: js, config: cfg}
	if err := r.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return r, nil
}

func (r *JetStreamRegistry) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        r.config.StreamName,
		Description: "Session lobby registrations",
		Subjects:    []string{fmt.Sprintf("%s.>", r.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      r.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  r.config.DuplicateWindow,
	}

	if _, err := r.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().Str("stream", r.config.StreamName).Msg("JetStream lobby stream ready")
	return nil
}

func (r *JetStreamRegistry) Register(ctx context.Context, meta Metadata) error {
	return r.publishWithRetry(ctx, Envelope{
		EventID:   uuid.NewString(),
		EventType: EventRegistered,
		SessionID: meta.SessionID,
		Timestamp: time.Now().UTC(),
		Metadata:  &meta,
	})
}

func (r *JetStreamRegistry) Unregister(ctx context.Context, sessionID string) error {
	return r.publishWithRetry(ctx, Envelope{
		EventID:   uuid.NewString(),
		EventType: EventUnregistered,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
}

// publishWithRetry backs off linearly between attempts.
func (r *JetStreamRegistry) publishWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.config.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr = r.publish(ctx, env); lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Str("session_id", env.SessionID).Msg("lobby publish failed")
	}
	return fmt.Errorf("publish %s after %d attempts: %w", env.EventType, r.config.MaxRetries+1, lastErr)
}

func (r *JetStreamRegistry) publish(ctx context.Context, env Envelope) error {
	subject := Subject(r.config.SubjectPrefix, env.EventType)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := r.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{env.EventType},
			"Session-ID": []string{env.SessionID},
			"Event-ID":   []string{env.EventID},
		},
	},
		jetstream.WithMsgID(env.EventID),
		jetstream.WithExpectStream(r.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("session_id", env.SessionID).
		Uint64("sequence", ack.Sequence).
		Msg("published lobby event")
	return nil
}

// Subject builds the subject for a lobby event type.
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

func (r *JetStreamRegistry) Close() error {
	if r.nc != nil {
		r.nc.Close()
	}
	return nil
}
