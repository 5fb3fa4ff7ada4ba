// Package tally counts votes for a single voting round.
//
// Every player holds at most one ballot. Casting again for the same choice is a
// no-op, casting for a different choice moves the ballot, so the sum of all
// counts always equals the number of ballots.
package tally

import (
	"github.com/google/uuid"
)

// CastResult describes what a Cast did to the tally.
type CastResult int

const (
	// CastCounted is a first ballot from this player.
	CastCounted CastResult = iota
	// CastSwitched moved an existing ballot to a different choice.
	CastSwitched
	// CastUnchanged repeated the player's current ballot.
	CastUnchanged
)

// Tally is not safe for concurrent use; a session goroutine owns it.
type Tally struct {
	counts  map[string]int
	ballots map[uuid.UUID]string
}

func New() *Tally {
	return &Tally{
		counts:  make(map[string]int),
		ballots: make(map[uuid.UUID]string),
	}
}

// Cast records playerID's ballot for choiceID.
func (t *Tally) Cast(playerID uuid.UUID, choiceID string) CastResult {
	prev, ok := t.ballots[playerID]
	if ok && prev == choiceID {
		return CastUnchanged
	}
	if ok {
		t.decrement(prev)
	}
	t.ballots[playerID] = choiceID
	t.counts[choiceID]++
	if ok {
		return CastSwitched
	}
	return CastCounted
}

// Retract removes playerID's ballot. It reports whether a ballot existed.
func (t *Tally) Retract(playerID uuid.UUID) bool {
	prev, ok := t.ballots[playerID]
	if !ok {
		return false
	}
	delete(t.ballots, playerID)
	t.decrement(prev)
	return true
}

func (t *Tally) decrement(choiceID string) {
	t.counts[choiceID]--
	if t.counts[choiceID] <= 0 {
		delete(t.counts, choiceID)
	}
}

// Ballot returns the choice playerID currently votes for.
func (t *Tally) Ballot(playerID uuid.UUID) (string, bool) {
	c, ok := t.ballots[playerID]
	return c, ok
}

func (t *Tally) Count(choiceID string) int { return t.counts[choiceID] }

// Total is the number of ballots cast.
func (t *Tally) Total() int { return len(t.ballots) }

// Counts returns a copy of the counts for the given choices, zeros included.
func (t *Tally) Counts(order []string) map[string]int {
	out := make(map[string]int, len(order))
	for _, id := range order {
		out[id] = t.counts[id]
	}
	return out
}

// Resolve picks the winning choice among order. The highest count wins and a
// tie goes to whichever tied choice is listed first, which also makes the
// first choice win when nobody voted. It returns false only for an empty order.
func (t *Tally) Resolve(order []string) (string, bool) {
	if len(order) == 0 {
		return "", false
	}
	winner, best := order[0], t.counts[order[0]]
	for _, id := range order[1:] {
		if n := t.counts[id]; n > best {
			winner, best = id, n
		}
	}
	return winner, true
}

// Reset discards every ballot.
func (t *Tally) Reset() {
	clear(t.counts)
	clear(t.ballots)
}
