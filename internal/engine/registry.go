package engine

import (
	"fmt"
	"sync"
)

// Registry tracks every loaded workflow instance of the process.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Workflow
}

// NewRegistry creates an empty instance registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Workflow),
	}
}

// Register adds a workflow instance.
func (r *Registry) Register(wf *Workflow) error {
	if wf == nil {
		return fmt.Errorf("cannot register nil workflow")
	}
	if wf.ID() == "" {
		return fmt.Errorf("workflow has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[wf.ID()]; exists {
		return fmt.Errorf("workflow instance %s already registered", wf.ID())
	}

	r.instances[wf.ID()] = wf
	return nil
}

// Unregister removes a workflow instance.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[id]; !exists {
		return fmt.Errorf("workflow instance %s not registered", id)
	}

	delete(r.instances, id)
	return nil
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
