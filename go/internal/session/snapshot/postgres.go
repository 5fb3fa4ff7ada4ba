package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/crossroads/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	session_id TEXT PRIMARY KEY,
	state      BYTEA NOT NULL,
	metadata   JSONB,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Metadata is a queryable summary stored next to the opaque blob.
type Metadata struct {
	Status  string `json:"status"`
	SceneID string `json:"scene_id"`
	Round   int    `json:"round"`
	Players int    `json:"players"`
}

// PostgresStore stores snapshots in Postgres through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the snapshot table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate session_snapshots: %w", err)
	}
	return nil
}

type pgQueries struct {
	tx *sql.Tx
}

func (q *pgQueries) upsert(ctx context.Context, sessionID string, blob []byte, meta pqtype.NullRawMessage) error {
	_, err := q.tx.ExecContext(ctx, `
		INSERT INTO session_snapshots (session_id, state, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET state = EXCLUDED.state,
		    metadata = EXCLUDED.metadata,
		    version = session_snapshots.version + 1,
		    updated_at = now()`,
		sessionID, blob, meta)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, blob []byte) error {
	var meta pqtype.NullRawMessage
	if summary := summarize(blob); summary != nil {
		var err error
		if meta, err = sqlutil.ToNullRawMessage(summary); err != nil {
			return err
		}
	}
	bind := func(tx *sql.Tx) *pgQueries { return &pgQueries{tx: tx} }
	err := sqlutil.Run(ctx, s.db, bind, func(q *pgQueries) error {
		return q.upsert(ctx, sessionID, blob, meta)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_snapshots WHERE session_id = $1`, sessionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	return blob, nil
}

// LoadMetadata returns the summary saved with a snapshot.
func (s *PostgresStore) LoadMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	var raw pqtype.NullRawMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM session_snapshots WHERE session_id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("load snapshot metadata %s: %w", sessionID, err)
	}
	var meta Metadata
	if _, err := sqlutil.FromNullRawMessage(raw, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", sessionID, err)
	}
	return nil
}

// summarize returns nil for blobs it cannot read; metadata is optional.
func summarize(blob []byte) *Metadata {
	st, err := Decode(blob)
	if err != nil {
		log.Debug().Err(err).Msg("snapshot blob has no readable metadata")
		return nil
	}
	return &Metadata{
		Status:  string(st.Status),
		SceneID: st.SceneID,
		Round:   st.Round,
		Players: len(st.Players),
	}
}
