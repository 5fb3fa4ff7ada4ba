// Package events defines the messages exchanged between a session and its
// clients, and their JSON encoding.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of an outbound message.
type Type string

const (
	TypeSessionSnapshot Type = "session-snapshot"
	TypePlayerJoined    Type = "player-joined"
	TypePlayerLeft      Type = "player-left"
	TypeVotingStarted   Type = "voting-started"
	TypeVoteProgress    Type = "vote-progress"
	TypeVotingEnded     Type = "voting-ended"
	TypeSceneChanged    Type = "scene-changed"
	TypeSessionEnded    Type = "session-ended"
	TypeError           Type = "error"
)

// Message is the envelope for every outbound message.
type Message struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds a message carrying payload.
func New(sessionID string, typ Type, payload any, now time.Time) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Encode renders the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// DecodeData unmarshals the payload of m into T.
func DecodeData[T any](m Message) (T, error) {
	var payload T
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return payload, nil
}
