package callee

import (
	"sort"
	"sync"

	"subflow/internal/location"
	"subflow/pkg/logging"
)

// callerRegistration remembers which locations were loaded on behalf of
// which calling workflow. It has its own lock since it only changes when
// callers open or close.
type callerRegistration struct {
	mu       sync.Mutex
	byCaller map[string]map[string]location.Location
}

// Track records that caller uses loc. Callers must call InvalidateAllFor
// when they close, otherwise the relation is kept for the lifetime of the
// registry.
func (r *Registry[T]) Track(caller string, loc location.Location) {
	if caller == "" {
		return
	}
	r.callers.mu.Lock()
	defer r.callers.mu.Unlock()

	locs, ok := r.callers.byCaller[caller]
	if !ok {
		locs = make(map[string]location.Location)
		r.callers.byCaller[caller] = locs
	}
	locs[loc.Key()] = loc
}

// TrackedBy returns the locations tracked for caller, sorted by key.
func (r *Registry[T]) TrackedBy(caller string) []location.Location {
	r.callers.mu.Lock()
	defer r.callers.mu.Unlock()

	locs := make([]location.Location, 0, len(r.callers.byCaller[caller]))
	for _, loc := range r.callers.byCaller[caller] {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Key() < locs[j].Key() })
	return locs
}

// InvalidateAllFor forgets caller and evicts every location it loaded,
// whether idle or not. It returns the number of evicted handles.
func (r *Registry[T]) InvalidateAllFor(caller string) int {
	r.callers.mu.Lock()
	locs := r.callers.byCaller[caller]
	delete(r.callers.byCaller, caller)
	r.callers.mu.Unlock()

	evicted := 0
	for _, loc := range locs {
		if r.Invalidate(loc) {
			evicted++
		}
	}
	if len(locs) > 0 {
		logging.Info("Registry", "Caller %s closed, evicted %d of %d tracked workflows", caller, evicted, len(locs))
	}
	return evicted
}
