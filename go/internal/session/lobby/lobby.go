// Package lobby announces live sessions to an external session registry so
// clients can discover open rooms.
package lobby

import (
	"context"
	"time"
)

// Metadata describes a registered session.
type Metadata struct {
	SessionID string    `json:"session_id"`
	SceneID   string    `json:"scene_id"`
	Node      string    `json:"node,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry receives register/unregister notifications. Callers treat errors
// as non-fatal.
type Registry interface {
	Register(ctx context.Context, meta Metadata) error
	Unregister(ctx context.Context, sessionID string) error
	Close() error
}

// NoopRegistry discards every notification.
type NoopRegistry struct{}

func (NoopRegistry) Register(context.Context, Metadata) error { return nil }
func (NoopRegistry) Unregister(context.Context, string) error { return nil }
func (NoopRegistry) Close() error                             { return nil }
