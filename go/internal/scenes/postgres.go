package scenes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/sqlutil"
)

// PostgresProvider reads scenes from a `scenes` table owned by the authoring tool:
//
//	scenes(id text primary key, title text, body text, is_final bool, choices jsonb)
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider opens a pgx pool for dsn.
func NewPostgresProvider(ctx context.Context, dsn string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

func (p *PostgresProvider) GetScene(ctx context.Context, sceneID string) (models.Scene, error) {
	var (
		scene   models.Scene
		body    sql.NullString
		choices []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, title, body, is_final, choices FROM scenes WHERE id = $1`, sceneID).
		Scan(&scene.ID, &scene.Title, &body, &scene.IsFinal, &choices)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Scene{}, notFound(sceneID)
	}
	if err != nil {
		return models.Scene{}, fmt.Errorf("query scene %s: %w", sceneID, err)
	}
	scene.Body = sqlutil.FromSqlString(body, "")
	if len(choices) > 0 {
		if err := json.Unmarshal(choices, &scene.Choices); err != nil {
			return models.Scene{}, fmt.Errorf("decode choices of scene %s: %w", sceneID, err)
		}
	}
	return scene, nil
}

func (p *PostgresProvider) Close() {
	p.pool.Close()
}
