// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/crossroads/go/internal/dbconfig"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/session"
	"github.com/rs/zerolog"
)

const (
	SceneSourceFile     = "file"
	SceneSourcePostgres = "postgres"

	SnapshotMemory   = "memory"
	SnapshotPostgres = "postgres"
	SnapshotSQLite   = "sqlite"

	LobbyNone  = "none"
	LobbyNATS  = "nats"
	LobbyRedis = "redis"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// Node names this process in lobby registrations.
	Node string `env:"NODE_NAME"`

	StartPolicy        models.StartPolicy `env:"START_POLICY" envDefault:"auto"`
	MinPlayers         int                `env:"MIN_PLAYERS" envDefault:"2"`
	RoundDuration      time.Duration      `env:"ROUND_DURATION" envDefault:"30s"`
	IdleTimeout        time.Duration      `env:"IDLE_TIMEOUT" envDefault:"10m"`
	RetainDisconnected bool               `env:"RETAIN_DISCONNECTED" envDefault:"true"`
	AutoCreateSessions bool               `env:"AUTO_CREATE_SESSIONS" envDefault:"true"`
	// InitialScene overrides the story's start scene for new sessions.
	InitialScene string `env:"INITIAL_SCENE"`

	SceneSource     string `env:"SCENE_SOURCE" envDefault:"file"`
	ScenesFile      string `env:"SCENES_FILE" envDefault:"scenes.yaml"`
	SnapshotBackend string `env:"SNAPSHOT_BACKEND" envDefault:"memory"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"crossroads.db"`

	LobbyBackend  string `env:"LOBBY_BACKEND" envDefault:"none"`
	NATSURL       string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DB dbconfig.Config `envPrefix:"DB_"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.StartPolicy.Valid() {
		return fmt.Errorf("START_POLICY must be %q or %q, got %q", models.StartPolicyAuto, models.StartPolicyManual, c.StartPolicy)
	}
	if c.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS must be at least 1, got %d", c.MinPlayers)
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive, got %s", c.RoundDuration)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("IDLE_TIMEOUT must not be negative, got %s", c.IdleTimeout)
	}
	if err := oneOf("SCENE_SOURCE", c.SceneSource, SceneSourceFile, SceneSourcePostgres); err != nil {
		return err
	}
	if err := oneOf("SNAPSHOT_BACKEND", c.SnapshotBackend, SnapshotMemory, SnapshotPostgres, SnapshotSQLite); err != nil {
		return err
	}
	if err := oneOf("LOBBY_BACKEND", c.LobbyBackend, LobbyNone, LobbyNATS, LobbyRedis); err != nil {
		return err
	}
	if c.SceneSource == SceneSourcePostgres && c.InitialScene == "" {
		return fmt.Errorf("INITIAL_SCENE is required with SCENE_SOURCE=%s", SceneSourcePostgres)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, allowed, value)
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Session returns the per-session settings.
func (c Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.StartPolicy = c.StartPolicy
	cfg.MinPlayers = c.MinPlayers
	cfg.RoundDuration = c.RoundDuration
	cfg.IdleTimeout = c.IdleTimeout
	cfg.RetainDisconnected = c.RetainDisconnected
	return cfg
}
