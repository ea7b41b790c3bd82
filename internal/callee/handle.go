package callee

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"subflow/internal/api"
	"subflow/internal/location"
	"subflow/pkg/logging"
)

// Instance is a loaded engine object owned by a Handle.
type Instance interface {
	// ID identifies the instance in the engine's process-wide registry.
	ID() string
	// Cancel interrupts a run in progress, if any.
	Cancel()
}

// Handle is a cached, loaded callee workflow together with its
// exclusive-use lock and lifecycle.
type Handle[T Instance] struct {
	id              string
	location        location.Location
	instance        T
	dir             string
	tempRoot        string
	discardAfterUse bool

	gate             gate
	markedForDiscard atomic.Bool

	mu        sync.Mutex
	lifecycle *stateless.StateMachine
	lastUsed  time.Time

	teardownOnce sync.Once
	destroyed    chan struct{}

	// set by the registry
	now        func() time.Time
	unregister func(T) error
	removeAll  func(string) error
	onRelease  func()
}

// ID returns the handle id.
func (h *Handle[T]) ID() string { return h.id }

// Location returns the location the handle was loaded from.
func (h *Handle[T]) Location() location.Location { return h.location }

// Dir returns the directory backing the handle.
func (h *Handle[T]) Dir() string { return h.dir }

// DiscardAfterUse reports whether the backing directory is a temporary
// download that is removed when the handle is destroyed.
func (h *Handle[T]) DiscardAfterUse() bool { return h.discardAfterUse }

// Instance returns the engine instance. It may only be driven while the
// caller holds the lock.
func (h *Handle[T]) Instance() T { return h.instance }

// InUse reports whether some caller holds the lock. It never blocks on the
// lock itself.
func (h *Handle[T]) InUse() bool { return h.gate.isHeld() }

// MarkedForDiscard reports whether the handle has been evicted.
func (h *Handle[T]) MarkedForDiscard() bool { return h.markedForDiscard.Load() }

// Destroyed is closed once teardown has completed.
func (h *Handle[T]) Destroyed() <-chan struct{} { return h.destroyed }

// State returns the current lifecycle state.
func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

// LastUsed returns when the handle was last loaded, locked or unlocked.
func (h *Handle[T]) LastUsed() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastUsed
}

func (h *Handle[T]) stateLocked() State {
	return h.lifecycle.MustState().(State)
}

// Lock blocks until the caller has exclusive use of the handle or ctx is
// done. A canceled wait returns a ConcurrencyError. If the handle was
// destroyed while the caller waited, Lock returns api.ErrHandleDiscarded
// without holding the lock; the caller should get a fresh handle from the
// registry.
func (h *Handle[T]) Lock(ctx context.Context) error {
	if err := h.gate.acquire(ctx); err != nil {
		return &api.ConcurrencyError{Location: h.location.Key(), Cause: err}
	}

	h.mu.Lock()
	if h.stateLocked() == StateDestroyed {
		h.mu.Unlock()
		h.gate.release()
		return api.ErrHandleDiscarded
	}
	if err := h.lifecycle.Fire(triggerAcquire); err != nil {
		h.mu.Unlock()
		h.gate.release()
		logging.Error("Handle", err, "Unexpected lifecycle state for %s", h.location.Key())
		return err
	}
	h.lastUsed = h.now()
	h.mu.Unlock()

	return nil
}

// Unlock releases the lock. If the handle was evicted while locked it is
// destroyed before Unlock returns. Only the current holder may call Unlock;
// the handle does not record who holds it. With no holder at all the call
// is logged and ignored.
func (h *Handle[T]) Unlock() {
	h.mu.Lock()
	state := h.stateLocked()
	if state != StateInUse && state != StateDiscardPending {
		h.mu.Unlock()
		logging.Warn("Handle", "Unlock of %s in state %s ignored", h.location.Key(), state)
		return
	}
	if err := h.lifecycle.Fire(triggerRelease); err != nil {
		logging.Error("Handle", err, "Failed to release %s", h.location.Key())
	}
	h.lastUsed = h.now()
	destroy := h.stateLocked() == StateDestroyed
	h.mu.Unlock()

	if destroy {
		h.teardown()
	}
	h.gate.release()

	if !destroy && h.onRelease != nil {
		h.onRelease()
	}
}

// evict marks the handle for discard. An unlocked handle is destroyed
// right away, a locked one when it is unlocked. It returns whether the
// handle was still in use.
func (h *Handle[T]) evict() (inUse bool) {
	h.markedForDiscard.Store(true)

	h.mu.Lock()
	if err := h.lifecycle.Fire(triggerEvict); err != nil {
		logging.Error("Handle", err, "Failed to evict %s", h.location.Key())
	}
	state := h.stateLocked()
	h.mu.Unlock()

	if state == StateDestroyed {
		h.teardown()
		return false
	}
	return true
}

func (h *Handle[T]) teardown() {
	h.teardownOnce.Do(func() {
		if h.unregister != nil {
			if err := h.unregister(h.instance); err != nil {
				logging.Warn("Handle", "Failed to unregister instance %s: %v", h.instance.ID(), err)
			}
		}
		if h.discardAfterUse && h.tempRoot != "" && h.removeAll != nil {
			if err := h.removeAll(h.tempRoot); err != nil {
				logging.Error("Handle", err, "Failed to remove temporary directory %s", h.tempRoot)
			}
		}
		close(h.destroyed)
		logging.Debug("Handle", "Destroyed handle %s for %s", h.id, h.location.Key())
	})
}

func newHandle[T Instance](loc location.Location, loaded Loaded[T], now func() time.Time) *Handle[T] {
	root := loaded.Root
	if root == "" {
		root = loaded.Dir
	}
	return &Handle[T]{
		id:              uuid.New().String(),
		location:        loc,
		instance:        loaded.Instance,
		dir:             loaded.Dir,
		tempRoot:        root,
		discardAfterUse: loaded.Temporary,
		lifecycle:       newLifecycle(loc.Key()),
		lastUsed:        now(),
		destroyed:       make(chan struct{}),
		now:             now,
	}
}

// HandleInfo is a point-in-time description of a cached handle.
type HandleInfo struct {
	ID              string    `json:"id"`
	Location        string    `json:"location"`
	InstanceID      string    `json:"instanceId"`
	State           State     `json:"state"`
	InUse           bool      `json:"inUse"`
	Waiting         int       `json:"waiting"`
	DiscardAfterUse bool      `json:"discardAfterUse"`
	Dir             string    `json:"dir"`
	LastUsed        time.Time `json:"lastUsed"`
}

// Info returns a snapshot of the handle.
func (h *Handle[T]) Info() HandleInfo {
	h.mu.Lock()
	state := h.stateLocked()
	lastUsed := h.lastUsed
	h.mu.Unlock()

	return HandleInfo{
		ID:              h.id,
		Location:        h.location.Key(),
		InstanceID:      h.instance.ID(),
		State:           state,
		InUse:           h.gate.isHeld(),
		Waiting:         h.gate.waiting(),
		DiscardAfterUse: h.discardAfterUse,
		Dir:             h.dir,
		LastUsed:        lastUsed,
	}
}
