// Package callee caches loaded callee workflows and serializes their use.
//
// A Registry maps a canonical location to a Handle. The first Get for a
// location loads the workflow through a Loader; concurrent Gets for the same
// location share that single load. Every Handle carries an exclusive-use
// lock: a caller must hold it from before applying inputs until after the
// outputs have been read.
//
//	h, err := registry.Get(ctx, loc)
//	if err != nil {
//		return err
//	}
//	if err := h.Lock(ctx); err != nil {
//		return err
//	}
//	defer h.Unlock()
//
// Handles are evicted when they have been idle for longer than the
// configured maximum, when the registry is over capacity, on explicit
// invalidation and on Close. An evicted handle that is still locked is
// only destroyed once its holder unlocks it. Destroying a handle
// unregisters the engine instance and, for workflows extracted from a
// download, removes the temporary directory. Both happen exactly once.
//
// Callers that load workflows on behalf of a calling workflow register the
// relation with Track and must call InvalidateAllFor when that calling
// workflow is closed.
package callee
