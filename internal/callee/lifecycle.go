package callee

import (
	"context"

	"github.com/qmuntal/stateless"

	"subflow/pkg/logging"
)

// State is the lifecycle state of a Handle.
type State string

const (
	// StateCreated is the state right after a successful load.
	StateCreated State = "CREATED"
	// StateInUse means a caller holds the handle's lock.
	StateInUse State = "IN_USE"
	// StateIdle means the handle is cached and unlocked.
	StateIdle State = "IDLE"
	// StateDiscardPending means the handle was evicted while locked. It is
	// destroyed when the holder unlocks it.
	StateDiscardPending State = "DISCARD_PENDING"
	// StateDestroyed means the engine instance was unregistered and any
	// temporary files were removed.
	StateDestroyed State = "DESTROYED"
)

type trigger string

const (
	triggerAcquire trigger = "acquire"
	triggerRelease trigger = "release"
	triggerEvict   trigger = "evict"
)

// newLifecycle builds the state machine of one handle. It is not safe for
// concurrent use; Handle fires it under its own mutex.
func newLifecycle(key string) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateCreated)

	sm.Configure(StateCreated).
		Permit(triggerAcquire, StateInUse).
		Permit(triggerEvict, StateDestroyed)

	sm.Configure(StateInUse).
		Permit(triggerRelease, StateIdle).
		Permit(triggerEvict, StateDiscardPending)

	sm.Configure(StateIdle).
		Permit(triggerAcquire, StateInUse).
		Permit(triggerEvict, StateDestroyed)

	sm.Configure(StateDiscardPending).
		Permit(triggerRelease, StateDestroyed).
		Ignore(triggerEvict)

	sm.Configure(StateDestroyed).
		Ignore(triggerEvict)

	sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logging.Debug("Lifecycle", "%s: %v -> %v (%v)", key, t.Source, t.Destination, t.Trigger)
	})

	return sm
}
