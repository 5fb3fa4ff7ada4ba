package snapshot

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned by Load when nothing is stored for a session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store saves and loads opaque state blobs keyed by session id.
type Store interface {
	Save(ctx context.Context, sessionID string, blob []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
}
