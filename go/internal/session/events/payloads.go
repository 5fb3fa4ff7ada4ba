package events

import (
	"time"

	"github.com/mcdev12/crossroads/go/internal/models"
)

// PlayerView is the public part of a player.
type PlayerView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	HasVoted  bool      `json:"hasVoted"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// NewPlayerView hides the reconnect token and the player's ballot.
func NewPlayerView(p *models.Player) PlayerView {
	return PlayerView{
		ID:        p.ID.String(),
		Name:      p.Name,
		Connected: p.Connected,
		HasVoted:  p.HasVoted,
		JoinedAt:  p.JoinedAt,
	}
}

// SessionView is the externally visible state of a session.
type SessionView struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Round     int                  `json:"round"`
	Scene     *models.Scene        `json:"scene,omitempty"`
	Players   []PlayerView         `json:"players"`
	Votes     map[string]int       `json:"votes"`
	Deadline  *time.Time           `json:"deadline,omitempty"`
}

// SessionSnapshotPayload is sent to a connection right after it joins.
type SessionSnapshotPayload struct {
	Session     SessionView `json:"session"`
	PlayerID    string      `json:"playerId"`
	Token       string      `json:"token"`
	Reconnected bool        `json:"reconnected"`
	VotedChoice string      `json:"votedChoice,omitempty"`
}

type PlayerJoinedPayload struct {
	Player      PlayerView `json:"player"`
	Reconnected bool       `json:"reconnected"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Removed  bool   `json:"removed"`
}

// VotingStartedPayload opens a round.
type VotingStartedPayload struct {
	Round    int             `json:"round"`
	SceneID  string          `json:"sceneId"`
	Choices  []models.Choice `json:"choices"`
	Deadline time.Time       `json:"deadline"`
}

// VoteProgressPayload reports how many connected players have voted, without
// revealing choices.
type VoteProgressPayload struct {
	Voted   int `json:"voted"`
	Players int `json:"players"`
}

// Reasons a voting round ended.
const (
	ReasonAllVoted = "all-voted"
	ReasonTimeout  = "timeout"
)

type VotingEndedPayload struct {
	Round         int            `json:"round"`
	WinningChoice string         `json:"winningChoice"`
	Tally         map[string]int `json:"tally"`
	Reason        string         `json:"reason"`
}

type SceneChangedPayload struct {
	Scene models.Scene `json:"scene"`
}

// Reasons a session ended.
const (
	EndStoryComplete = "story-complete"
	EndFinalScene    = "final-scene"
	EndSceneNotFound = "scene-not-found"
	EndSceneError    = "scene-unavailable"
	EndNoChoices     = "no-choices"
)

type SessionEndedPayload struct {
	SceneID    string         `json:"sceneId"`
	FinalTally map[string]int `json:"finalTally,omitempty"`
	Reason     string         `json:"reason"`
}

// ErrorPayload is only ever sent to the connection that caused it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
