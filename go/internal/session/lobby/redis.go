package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// KeyPrefix namespaces the index set and the per-session keys.
	KeyPrefix string
	// TTL expires entries of nodes that died without unregistering.
	TTL time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:   "localhost:6379",
		KeyPrefix: "crossroads:lobby",
		TTL:       6 * time.Hour,
	}
}

// RedisRegistry keeps one key per session plus an index set of session ids.
type RedisRegistry struct {
	client *redis.Client
	config RedisConfig
}

func NewRedisRegistry(cfg RedisConfig) *RedisRegistry {
	return &RedisRegistry{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		config: cfg,
	}
}

func (r *RedisRegistry) indexKey() string { return r.config.KeyPrefix + ":sessions" }

func (r *RedisRegistry) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.config.KeyPrefix, id)
}

func (r *RedisRegistry) Register(ctx context.Context, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal lobby metadata: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(meta.SessionID), data, r.config.TTL)
	pipe.SAdd(ctx, r.indexKey(), meta.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register session %s: %w", meta.SessionID, err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, sessionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.SRem(ctx, r.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister session %s: %w", sessionID, err)
	}
	return nil
}

// List returns the registered sessions, pruning index entries whose key expired.
func (r *RedisRegistry) List(ctx context.Context) ([]Metadata, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)

	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
		if err == redis.Nil {
			r.client.SRem(ctx, r.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", id, err)
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
