// Package snapshot persists session state so a session can be restored after
// a restart.
package snapshot

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/mcdev12/crossroads/go/internal/models"
)

// State is the persisted part of a session. Timers and ballots are not saved.
type State struct {
	SessionID string               `cbor:"1,keyasint"`
	Status    models.SessionStatus `cbor:"2,keyasint"`
	SceneID   string               `cbor:"3,keyasint"`
	Round     int                  `cbor:"4,keyasint"`
	Players   []PlayerRecord       `cbor:"5,keyasint"`
	SavedAt   time.Time            `cbor:"6,keyasint"`
}

// PlayerRecord is what survives of a player across a restart.
type PlayerRecord struct {
	ID       uuid.UUID `cbor:"1,keyasint"`
	Token    string    `cbor:"2,keyasint"`
	Name     string    `cbor:"3,keyasint"`
	JoinedAt time.Time `cbor:"4,keyasint"`
}

// Player converts the record back to a disconnected player.
func (r PlayerRecord) Player() models.Player {
	return models.Player{
		ID:       r.ID,
		Token:    r.Token,
		Name:     r.Name,
		JoinedAt: r.JoinedAt,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if encMode, err = opts.EncMode(); err != nil {
		panic(fmt.Sprintf("snapshot: cbor encode mode: %v", err))
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("snapshot: cbor decode mode: %v", err))
	}
}

// Encode renders a state blob.
func Encode(s State) ([]byte, error) {
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a state blob.
func Decode(blob []byte) (State, error) {
	var s State
	if err := decMode.Unmarshal(blob, &s); err != nil {
		return State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if !s.Status.Valid() {
		return State{}, fmt.Errorf("decode snapshot: unknown status %q", s.Status)
	}
	return s, nil
}
