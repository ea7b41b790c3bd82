package invoke

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/engine"
	"subflow/internal/location"
	"subflow/internal/workpool"
	"subflow/pkg/logging"
)

// DefaultMaxAttempts bounds how often a call re-fetches a handle that was
// discarded while the call waited for it.
const DefaultMaxAttempts = 3

// Request is one call of a callee workflow.
type Request struct {
	// Caller identifies the calling workflow by its directory. Relative
	// targets and workflow:// references resolve against it. Empty for
	// top-level calls.
	Caller string `json:"caller,omitempty" yaml:"caller,omitempty"`

	// Target is the user supplied path or URI of the callee.
	Target string `json:"target" yaml:"target"`

	Inputs map[string]interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Outcome is the result of one request of a batch.
type Outcome struct {
	Request Request
	Result  *api.InvocationResult
	Err     error
}

// Service calls callee workflows.
type Service struct {
	resolver    *location.Resolver
	registry    *callee.Registry[*engine.Workflow]
	executor    *Executor
	pool        *workpool.Pool
	tracker     *Tracker
	maxAttempts int
}

// NewService creates a Service.
func NewService(resolver *location.Resolver, registry *callee.Registry[*engine.Workflow], pool *workpool.Pool, tracker *Tracker) *Service {
	if tracker == nil {
		tracker = NewTracker(DefaultHistorySize)
	}
	return &Service{
		resolver:    resolver,
		registry:    registry,
		executor:    NewExecutor(),
		pool:        pool,
		tracker:     tracker,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Resolve turns a target into a location, relative to caller.
func (s *Service) Resolve(target, caller string) (location.Location, error) {
	return s.resolver.Resolve(target, caller)
}

// Call invokes the target workflow synchronously. A run that does not end
// in EXECUTED returns both the result and an api.ExecutionFailure.
func (s *Service) Call(ctx context.Context, req Request) (*api.InvocationResult, error) {
	return s.tracker.Track(req, func(string) (*api.InvocationResult, error) {
		return s.call(ctx, req)
	})
}

func (s *Service) call(ctx context.Context, req Request) (*api.InvocationResult, error) {
	loc, err := s.resolver.Resolve(req.Target, req.Caller)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		h, err := s.registry.Get(ctx, loc)
		if err != nil {
			return nil, err
		}
		s.registry.Track(req.Caller, loc)

		result, err := s.invoke(ctx, h, req.Inputs)
		if errors.Is(err, api.ErrHandleDiscarded) && attempt < s.maxAttempts {
			logging.Debug("Service", "Handle for %s was discarded while waiting, retrying (attempt %d)", loc, attempt)
			continue
		}
		return result, err
	}
}

func (s *Service) invoke(ctx context.Context, h *callee.Handle[*engine.Workflow], inputs map[string]interface{}) (*api.InvocationResult, error) {
	if err := h.Lock(ctx); err != nil {
		return nil, err
	}
	defer h.Unlock()

	result, err := s.executor.InvokeHandle(ctx, h, inputs)
	if err != nil {
		return nil, err
	}
	return result, result.Err()
}

// Batch runs every request as a background task on the shared pool and
// waits for all of them. A failed request does not stop the others.
func (s *Service) Batch(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		i, req := i, req
		outcomes[i].Request = req
		g.Go(func() error {
			err := s.pool.Run(ctx, workpool.Background, func(ctx context.Context) error {
				result, err := s.Call(ctx, req)
				outcomes[i].Result = result
				return err
			})
			outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Open returns a LocalBackend holding the lock of the target's handle.
func (s *Service) Open(ctx context.Context, target, caller string) (*LocalBackend, error) {
	loc, err := s.resolver.Resolve(target, caller)
	if err != nil {
		return nil, err
	}
	backend, err := OpenLocal(ctx, s.registry, loc, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	s.registry.Track(caller, loc)
	return backend, nil
}

// CloseCaller evicts every workflow loaded on behalf of caller. The layer
// that owns calling workflows must call it when one of them closes.
func (s *Service) CloseCaller(caller string) int {
	return s.registry.InvalidateAllFor(caller)
}

// History returns the tracked invocations, newest first.
func (s *Service) History() []Invocation {
	return s.tracker.List()
}

// Handles describes the workflows currently cached by the registry.
func (s *Service) Handles() []callee.HandleInfo {
	return s.registry.Snapshot()
}

// CallTool returns the engine tool that lets a workflow step call another
// workflow:
//
//	- id: normalize
//	  tool: call
//	  args:
//	    workflow: workflow://../normalize
//	    inputs:
//	      text: "{{ .inputs.text }}"
//
// The step result is the callee's outputs. Calling a workflow from itself
// deadlocks until the run is canceled.
func (s *Service) CallTool() engine.Tool {
	return func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		target, _ := args["workflow"].(string)
		if target == "" {
			return nil, fmt.Errorf("argument 'workflow' is required")
		}

		var inputs map[string]interface{}
		if raw, ok := args["inputs"]; ok && raw != nil {
			m, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("argument 'inputs' must be an object, got %T", raw)
			}
			inputs = m
		}

		req := Request{Target: target, Inputs: inputs}
		if wf, ok := engine.FromContext(ctx); ok {
			req.Caller = wf.Dir()
		}

		result, err := s.Call(ctx, req)
		if err != nil {
			return nil, err
		}
		return result.Outputs, nil
	}
}
