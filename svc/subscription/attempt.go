package subscription

import "sync"

// attemptState is the lifecycle state of a purchase attempt. Success,
// cancellation and errors all fold back into idle: only one flow may be in
// flight at a time.
type attemptState string

type attemptEvent string

const (
	attemptIdle    attemptState = "idle"
	attemptPending attemptState = "pending"

	eventLaunch   attemptEvent = "launch"
	eventComplete attemptEvent = "complete"
)

// attemptTransitions is the fixed transition table for a purchase attempt.
// Any pair not listed is an illegal transition.
var attemptTransitions = map[attemptState]map[attemptEvent]attemptState{
	attemptIdle:    {eventLaunch: attemptPending},
	attemptPending: {eventComplete: attemptIdle},
}

// attemptTracker serializes purchase attempts. The terminal result of a
// flow arrives on the update feed, so the tracker is fired from both the
// purchase call and the listener goroutine.
type attemptTracker struct {
	mu    sync.Mutex
	state attemptState
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{state: attemptIdle}
}

// fire applies an event against the transition table. Returns false when
// the current state does not accept the event.
func (t *attemptTracker) fire(event attemptEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, ok := attemptTransitions[t.state][event]
	if !ok {
		return false
	}
	t.state = next
	return true
}

// begin marks a flow launched. Returns ErrPurchaseInProgress when another
// flow is still pending.
func (t *attemptTracker) begin() error {
	if !t.fire(eventLaunch) {
		return ErrPurchaseInProgress
	}
	return nil
}

// finish marks the pending flow terminal. Safe to call when already idle.
func (t *attemptTracker) finish() {
	t.fire(eventComplete)
}

// inFlight reports whether a flow is pending.
func (t *attemptTracker) inFlight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == attemptPending
}
