package main

import (
	"context"
	"os"

	"github.com/mcdev12/crossroads/go/internal/config"
	"github.com/mcdev12/crossroads/go/internal/scenes"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/mcdev12/crossroads/go/internal/session/gateway"
	"github.com/mcdev12/crossroads/go/internal/session/hub"
	"github.com/mcdev12/crossroads/go/internal/session/lobby"
	"github.com/mcdev12/crossroads/go/internal/session/snapshot"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Hub     *hub.Hub
	Gateway *gateway.Service

	closers []func()
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	s := &Services{}

	// Scene source → snapshot store → lobby registry → hub → gateway
	provider, initialScene, err := s.setupScenes(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	store, err := s.setupSnapshotStore(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	registry, err := s.setupLobby(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	node := cfg.Node
	if node == "" {
		node, _ = os.Hostname()
	}

	// Sessions outlive the signal context so shutdown can dispose them in order.
	s.Hub = hub.New(context.WithoutCancel(ctx), hub.Config{
		Session:        cfg.Session(),
		AutoCreate:     cfg.AutoCreateSessions,
		InitialSceneID: initialScene,
		Node:           node,
	}, hub.Dependencies{
		Scenes: provider,
		Store:  store,
		Lobby:  registry,
	})
	s.Gateway = gateway.NewService(gateway.DefaultConfig(), s.Hub)

	log.Info().
		Str("scene_source", cfg.SceneSource).
		Str("initial_scene", initialScene).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Str("lobby_backend", cfg.LobbyBackend).
		Str("start_policy", string(cfg.StartPolicy)).
		Msg("services ready")
	return s, nil
}

func (s *Services) setupScenes(ctx context.Context, cfg config.Config) (session.SceneProvider, string, error) {
	switch cfg.SceneSource {
	case config.SceneSourcePostgres:
		p, err := scenes.NewPostgresProvider(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, "", err
		}
		s.closers = append(s.closers, p.Close)
		return p, cfg.InitialScene, nil
	default:
		p, story, err := scenes.NewFileProvider(cfg.ScenesFile)
		if err != nil {
			return nil, "", err
		}
		initial := story.Start
		if cfg.InitialScene != "" {
			initial = cfg.InitialScene
		}
		log.Info().Str("file", cfg.ScenesFile).Int("scenes", len(story.Scenes)).Msg("scene file loaded")
		return p, initial, nil
	}
}

func (s *Services) setupSnapshotStore(ctx context.Context, cfg config.Config) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotPostgres:
		db, err := setupDatabase(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		store := snapshot.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.SnapshotSQLite:
		store, err := snapshot.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return snapshot.NewMemoryStore(), nil
	}
}

func (s *Services) setupLobby(ctx context.Context, cfg config.Config) (lobby.Registry, error) {
	var registry lobby.Registry
	switch cfg.LobbyBackend {
	case config.LobbyNATS:
		jsCfg := lobby.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		r, err := lobby.NewJetStreamRegistry(ctx, jsCfg)
		if err != nil {
			return nil, err
		}
		registry = r
	case config.LobbyRedis:
		redisCfg := lobby.DefaultRedisConfig()
		redisCfg.Address = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		r := lobby.NewRedisRegistry(redisCfg)
		if err := r.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis lobby unreachable, registrations will fail until it is up")
		}
		registry = r
	default:
		return lobby.NoopRegistry{}, nil
	}
	s.closers = append(s.closers, func() {
		if err := registry.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close lobby registry")
		}
	})
	return registry, nil
}

// Close releases backends in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
