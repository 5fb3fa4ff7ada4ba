package session

import (
	"time"

	"github.com/mcdev12/crossroads/go/internal/models"
)

// Config holds the tunables of a session.
type Config struct {
	RoundDuration time.Duration
	StartPolicy   models.StartPolicy
	// MinPlayers is the connected-player count that starts voting under StartPolicyAuto.
	MinPlayers int
	// RetainDisconnected keeps a player's record after it leaves so it can reconnect.
	RetainDisconnected bool
	// IdleTimeout disposes a session nobody is connected to. Zero disables it.
	IdleTimeout  time.Duration
	InboxSize    int
	SceneTimeout time.Duration
	SaveTimeout  time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		RoundDuration:      30 * time.Second,
		StartPolicy:        models.StartPolicyAuto,
		MinPlayers:         2,
		RetainDisconnected: true,
		IdleTimeout:        10 * time.Minute,
		InboxSize:          64,
		SceneTimeout:       5 * time.Second,
		SaveTimeout:        3 * time.Second,
	}
}
