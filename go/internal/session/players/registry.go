// Package players tracks the participants of one session.
package players

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/mcdev12/crossroads/go/internal/models"
)

// MaxNameLength is the longest accepted display name, in runes.
const MaxNameLength = 32

// JoinResult describes the outcome of a join.
type JoinResult struct {
	Player      *models.Player
	Reconnected bool
	// Replaced is the connection the player was still bound to, if any.
	Replaced string
}

// Registry is not safe for concurrent use; a session goroutine owns it.
type Registry struct {
	clock   clockwork.Clock
	byID    map[uuid.UUID]*models.Player
	byConn  map[string]uuid.UUID
	byToken map[string]uuid.UUID
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:   clock,
		byID:    make(map[uuid.UUID]*models.Player),
		byConn:  make(map[string]uuid.UUID),
		byToken: make(map[string]uuid.UUID),
	}
}

// Join binds connectionID to a player. A known reconnect token resumes the
// existing player record, anything else creates a new player.
func (r *Registry) Join(connectionID, name, token string) (JoinResult, error) {
	if connectionID == "" {
		return JoinResult{}, apperr.Validation("connection id is required")
	}
	if _, ok := r.byConn[connectionID]; ok {
		return JoinResult{}, apperr.State("connection has already joined")
	}

	if id, ok := r.byToken[token]; ok && token != "" {
		if name = strings.TrimSpace(name); name != "" {
			if err := validateName(name); err != nil {
				return JoinResult{}, err
			}
		}
		p := r.byID[id]
		res := JoinResult{Player: p, Reconnected: true, Replaced: p.ConnectionID}
		if res.Replaced != "" {
			delete(r.byConn, res.Replaced)
		}
		if name != "" {
			p.Name = name
		}
		p.ConnectionID = connectionID
		p.Connected = true
		r.byConn[connectionID] = p.ID
		return res, nil
	}

	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return JoinResult{}, err
	}

	p := &models.Player{
		ID:           uuid.New(),
		Token:        uuid.NewString(),
		ConnectionID: connectionID,
		Name:         name,
		Connected:    true,
		JoinedAt:     r.clock.Now(),
	}
	r.byID[p.ID] = p
	r.byConn[connectionID] = p.ID
	r.byToken[p.Token] = p.ID
	return JoinResult{Player: p}, nil
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperr.Validation("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// Restore adds a disconnected player record, as loaded from a snapshot.
func (r *Registry) Restore(p models.Player) {
	p.ConnectionID = ""
	p.Connected = false
	p.HasVoted = false
	p.VotedChoice = ""
	r.byID[p.ID] = &p
	if p.Token != "" {
		r.byToken[p.Token] = p.ID
	}
}

// Leave marks the player bound to connectionID as disconnected.
func (r *Registry) Leave(connectionID string) (*models.Player, bool) {
	id, ok := r.byConn[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connectionID)
	p := r.byID[id]
	p.ConnectionID = ""
	p.Connected = false
	return p, true
}

// Remove forgets a player entirely.
func (r *Registry) Remove(id uuid.UUID) {
	p, ok := r.byID[id]
	if !ok {
		return
	}
	if p.ConnectionID != "" {
		delete(r.byConn, p.ConnectionID)
	}
	delete(r.byToken, p.Token)
	delete(r.byID, id)
}

func (r *Registry) ByConnection(connectionID string) (*models.Player, bool) {
	id, ok := r.byConn[connectionID]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// MarkVoted records the player's current ballot.
func (r *Registry) MarkVoted(id uuid.UUID, choiceID string) {
	if p, ok := r.byID[id]; ok {
		p.HasVoted = true
		p.VotedChoice = choiceID
	}
}

// ClearVote drops the player's ballot marker.
func (r *Registry) ClearVote(id uuid.UUID) {
	if p, ok := r.byID[id]; ok {
		p.HasVoted = false
		p.VotedChoice = ""
	}
}

// ResetVotes clears every player's ballot marker.
func (r *Registry) ResetVotes() {
	for _, p := range r.byID {
		p.HasVoted = false
		p.VotedChoice = ""
	}
}

// Count returns the number of connected players.
func (r *Registry) Count() int { return len(r.byConn) }

// VotedCount returns the number of connected players holding a ballot.
func (r *Registry) VotedCount() int {
	n := 0
	for _, id := range r.byConn {
		if r.byID[id].HasVoted {
			n++
		}
	}
	return n
}

// Len returns the number of known players, connected or not.
func (r *Registry) Len() int { return len(r.byID) }

// All returns every known player ordered by join time.
func (r *Registry) All() []*models.Player {
	out := make([]*models.Player, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sortPlayers(out)
	return out
}

// Connected returns the connected players ordered by join time.
func (r *Registry) Connected() []*models.Player {
	out := make([]*models.Player, 0, len(r.byConn))
	for _, id := range r.byConn {
		out = append(out, r.byID[id])
	}
	sortPlayers(out)
	return out
}

func sortPlayers(ps []*models.Player) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}
