package callee

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"subflow/internal/api"
	"subflow/internal/location"
	"subflow/pkg/logging"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("callee registry is closed")

// Loaded is the result of loading a workflow.
type Loaded[T Instance] struct {
	Instance T

	// Dir is the directory the instance was loaded from.
	Dir string

	// Temporary marks the instance as loaded from a download that is
	// deleted once the handle is destroyed.
	Temporary bool

	// Root is the temporary directory removed on destroy. It defaults to
	// Dir and is only used when Temporary is set.
	Root string
}

// Loader performs the expensive load of a workflow and undoes the
// engine-side registration at teardown.
type Loader[T Instance] interface {
	Load(ctx context.Context, loc location.Location) (Loaded[T], error)
	Unregister(instance T) error
}

// Registry caches loaded workflows by location.
type Registry[T Instance] struct {
	loader Loader[T]
	opts   options

	// loads run on baseCtx so that one waiter giving up does not fail the
	// load for the others
	baseCtx    context.Context
	cancelBase context.CancelFunc
	group      singleflight.Group

	mu      sync.Mutex
	entries map[string]*Handle[T]
	closed  bool
	timer   Timer

	callers callerRegistration
}

// NewRegistry creates a registry that loads workflows through loader.
func NewRegistry[T Instance](loader Loader[T], opts ...Option) *Registry[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry[T]{
		loader:     loader,
		opts:       o,
		baseCtx:    ctx,
		cancelBase: cancel,
		entries:    make(map[string]*Handle[T]),
		callers:    callerRegistration{byCaller: make(map[string]map[string]location.Location)},
	}
}

// Get returns the cached handle for loc, loading it on a miss. Concurrent
// misses for the same location share one load. A failed load is returned
// as api.LoadError to every waiter and is not cached.
func (r *Registry[T]) Get(ctx context.Context, loc location.Location) (*Handle[T], error) {
	if r.isClosed() {
		return nil, ErrRegistryClosed
	}

	r.CleanUp()

	key := loc.Key()
	if h := r.lookup(key); h != nil {
		return h, nil
	}

	ch := r.group.DoChan(key, func() (interface{}, error) {
		if h := r.lookup(key); h != nil {
			return h, nil
		}
		return r.load(loc)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle[T]), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry[T]) lookup(key string) *Handle[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

func (r *Registry[T]) load(loc location.Location) (*Handle[T], error) {
	key := loc.Key()
	ctx := r.baseCtx
	if r.opts.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	logging.Debug("Registry", "Loading %s", key)

	loaded, err := r.loader.Load(ctx, loc)
	if err != nil {
		logging.Warn("Registry", "Failed to load %s: %v", key, err)
		return nil, api.NewLoadError(key, err)
	}

	h := newHandle(loc, loaded, r.opts.clock.Now)
	h.unregister = r.loader.Unregister
	h.removeAll = r.opts.removeAll
	h.onRelease = r.scheduleCleanup

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		h.evict()
		return nil, ErrRegistryClosed
	}
	r.entries[key] = h
	victims := r.overCapacityLocked(key)
	r.mu.Unlock()

	logging.Info("Registry", "Loaded %s in %s", key, time.Since(start).Round(time.Millisecond))

	for _, v := range victims {
		r.evict(v, CauseCapacity)
	}

	info := h.Info()
	for _, l := range r.opts.loadListeners {
		l(info)
	}
	return h, nil
}

// overCapacityLocked removes handles beyond maxSize, least recently used
// first and unlocked before locked. keep is never removed.
func (r *Registry[T]) overCapacityLocked(keep string) []*Handle[T] {
	excess := len(r.entries) - r.opts.maxSize
	if excess <= 0 {
		return nil
	}

	candidates := make([]*Handle[T], 0, len(r.entries))
	for key, h := range r.entries {
		if key != keep {
			candidates = append(candidates, h)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		iu, ju := candidates[i].InUse(), candidates[j].InUse()
		if iu != ju {
			return !iu
		}
		return candidates[i].LastUsed().Before(candidates[j].LastUsed())
	})

	if excess > len(candidates) {
		excess = len(candidates)
	}
	victims := candidates[:excess]
	for _, h := range victims {
		delete(r.entries, h.location.Key())
	}
	return victims
}

// evict runs discard for a handle already removed from entries and
// notifies listeners.
func (r *Registry[T]) evict(h *Handle[T], cause EvictionCause) {
	inUse := h.evict()
	if inUse {
		logging.Info("Registry", "Evicted %s (%s) while in use, destroying after unlock", h.location.Key(), cause)
	} else {
		logging.Info("Registry", "Evicted %s (%s)", h.location.Key(), cause)
	}

	info := h.Info()
	for _, l := range r.opts.evictionListeners {
		l(info, cause, inUse)
	}
}

// CleanUp evicts every unlocked handle that has been idle for longer than
// the maximum idle duration. It runs before every Get and after the delay
// scheduled by Unlock.
func (r *Registry[T]) CleanUp() int {
	now := r.opts.clock.Now()

	r.mu.Lock()
	var expired []*Handle[T]
	for key, h := range r.entries {
		if h.InUse() {
			continue
		}
		if now.Sub(h.LastUsed()) > r.opts.maxIdle {
			expired = append(expired, h)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, h := range expired {
		r.evict(h, CauseExpired)
	}
	return len(expired)
}

// scheduleCleanup arms the cleanup timer unless it is already pending.
func (r *Registry[T]) scheduleCleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduleLocked(r.opts.cleanupDelay)
}

func (r *Registry[T]) scheduleLocked(delay time.Duration) {
	if r.closed || r.timer != nil {
		return
	}
	r.timer = r.opts.clock.AfterFunc(delay, r.runScheduledCleanup)
}

func (r *Registry[T]) runScheduledCleanup() {
	r.mu.Lock()
	r.timer = nil
	r.mu.Unlock()

	r.CleanUp()

	// Re-arm for the next idle handle to expire.
	now := r.opts.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var next time.Duration = -1
	for _, h := range r.entries {
		if h.InUse() {
			continue
		}
		remaining := h.LastUsed().Add(r.opts.maxIdle).Sub(now) + time.Millisecond
		if next < 0 || remaining < next {
			next = remaining
		}
	}
	if next >= 0 {
		if next < time.Millisecond {
			next = time.Millisecond
		}
		r.scheduleLocked(next)
	}
}

// Invalidate evicts the handle for loc, if cached. It reports whether a
// handle was evicted.
func (r *Registry[T]) Invalidate(loc location.Location) bool {
	key := loc.Key()
	r.mu.Lock()
	h, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if ok {
		r.evict(h, CauseInvalidated)
	}
	return ok
}

// InvalidateAll evicts every cached handle.
func (r *Registry[T]) InvalidateAll() int {
	r.mu.Lock()
	all := make([]*Handle[T], 0, len(r.entries))
	for _, h := range r.entries {
		all = append(all, h)
	}
	r.entries = make(map[string]*Handle[T])
	r.mu.Unlock()

	for _, h := range all {
		r.evict(h, CauseInvalidated)
	}
	return len(all)
}

// Close evicts every handle, interrupts runs in progress and waits until
// all handles are destroyed or ctx is done. Get fails afterwards.
func (r *Registry[T]) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	all := make([]*Handle[T], 0, len(r.entries))
	for _, h := range r.entries {
		all = append(all, h)
	}
	r.entries = make(map[string]*Handle[T])
	r.mu.Unlock()

	r.cancelBase()

	for _, h := range all {
		r.evict(h, CauseClosed)
		if h.State() == StateDiscardPending {
			logging.Info("Registry", "Interrupting run of %s", h.location.Key())
			h.instance.Cancel()
		}
	}

	for _, h := range all {
		select {
		case <-h.Destroyed():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logging.Info("Registry", "Closed, %d handles destroyed", len(all))
	return nil
}

func (r *Registry[T]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of cached handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Contains reports whether loc is cached.
func (r *Registry[T]) Contains(loc location.Location) bool {
	return r.lookup(loc.Key()) != nil
}

// Snapshot describes every cached handle, ordered by location.
func (r *Registry[T]) Snapshot() []HandleInfo {
	r.mu.Lock()
	handles := make([]*Handle[T], 0, len(r.entries))
	for _, h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	infos := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Location < infos[j].Location })
	return infos
}
