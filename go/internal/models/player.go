package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a participant of one session.
type Player struct {
	ID           uuid.UUID `json:"id"`
	Token        string    `json:"-"` // reconnect token, only ever sent to its owner
	ConnectionID string    `json:"-"`
	Name         string    `json:"name"`
	Connected    bool      `json:"connected"`
	HasVoted     bool      `json:"hasVoted"`
	VotedChoice  string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
}
