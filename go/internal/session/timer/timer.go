// Package timer provides the single re-armable deadline a session uses for
// its voting round and idle disposal.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// FireFunc receives the generation of the arm that expired. It runs on the
// timer's own goroutine and must only hand the firing to its owner.
type FireFunc func(generation uint64)

// Timer is owned by one goroutine; Arm and Cancel are not safe for concurrent use.
// Every Arm bumps the generation, so a firing that raced with Cancel or a newer
// Arm can be recognised with Current and dropped.
type Timer struct {
	clock clockwork.Clock
	fire  FireFunc

	active   clockwork.Timer
	stop     chan struct{}
	gen      uint64
	deadline time.Time
}

func New(clock clockwork.Clock, fire FireFunc) *Timer {
	return &Timer{clock: clock, fire: fire}
}

// Arm schedules one firing after d, replacing any pending one.
func (t *Timer) Arm(d time.Duration) (deadline time.Time, generation uint64) {
	t.Cancel()

	t.gen++
	gen := t.gen
	t.deadline = t.clock.Now().Add(d)

	ct := t.clock.NewTimer(d)
	stop := make(chan struct{})
	t.active, t.stop = ct, stop

	go func() {
		select {
		case <-ct.Chan():
			t.fire(gen)
		case <-stop:
			stopAndDrainTimer(ct)
		}
	}()

	return t.deadline, gen
}

// Cancel disarms the timer. Calling it on a disarmed timer is a no-op.
func (t *Timer) Cancel() {
	if t.active == nil {
		return
	}
	close(t.stop)
	t.active, t.stop = nil, nil
	t.deadline = time.Time{}
}

// Current reports whether generation belongs to the pending arm.
func (t *Timer) Current(generation uint64) bool {
	return t.active != nil && generation == t.gen
}

// Armed reports whether a firing is pending.
func (t *Timer) Armed() bool { return t.active != nil }

// Deadline returns when the pending arm fires.
func (t *Timer) Deadline() (time.Time, bool) {
	return t.deadline, t.active != nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
