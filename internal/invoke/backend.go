package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/engine"
	"subflow/internal/location"
)

// Backend is one open callee workflow.
type Backend interface {
	// Inputs returns the declared input parameters.
	Inputs() []api.Parameter
	// SetInputs validates and applies input values for the next Execute.
	SetInputs(values map[string]interface{}) error
	// Outputs returns the outputs of the last successful Execute.
	Outputs() map[string]interface{}
	// Execute runs the workflow to completion.
	Execute(ctx context.Context) (*api.InvocationResult, error)
	// Close releases the workflow. It is safe to call more than once.
	Close() error
}

// ErrAlreadyInUse is returned by EphemeralBackend.Execute when another
// Execute is still running.
var ErrAlreadyInUse = errors.New("workflow is already in use")

// ErrBackendClosed is returned by a closed backend.
var ErrBackendClosed = errors.New("workflow backend is closed")

// LocalBackend drives a cached handle. It holds the handle's lock from
// OpenLocal until Close.
type LocalBackend struct {
	handle   *callee.Handle[*engine.Workflow]
	executor *Executor

	mu      sync.Mutex
	inputs  map[string]interface{}
	outputs map[string]interface{}
	closed  bool
}

// OpenLocal gets the handle for loc from registry and locks it, waiting
// for other users. A handle discarded while waiting is replaced by a fresh
// one.
func OpenLocal(ctx context.Context, registry *callee.Registry[*engine.Workflow], loc location.Location, maxAttempts int) (*LocalBackend, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		h, err := registry.Get(ctx, loc)
		if err != nil {
			return nil, err
		}
		err = h.Lock(ctx)
		if err == nil {
			return &LocalBackend{handle: h, executor: NewExecutor()}, nil
		}
		if !errors.Is(err, api.ErrHandleDiscarded) || attempt >= maxAttempts {
			return nil, err
		}
	}
}

// Handle returns the locked handle.
func (b *LocalBackend) Handle() *callee.Handle[*engine.Workflow] { return b.handle }

// Inputs implements Backend.
func (b *LocalBackend) Inputs() []api.Parameter {
	return b.handle.Instance().InputParameters()
}

// OutputParameters returns the declared output parameters.
func (b *LocalBackend) OutputParameters() []api.Parameter {
	return b.handle.Instance().OutputParameters()
}

// SetInputs implements Backend.
func (b *LocalBackend) SetInputs(values map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	if err := b.handle.Instance().ApplyInputs(values); err != nil {
		return err
	}
	b.inputs = values
	return nil
}

// Outputs implements Backend.
func (b *LocalBackend) Outputs() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs
}

// Execute implements Backend.
func (b *LocalBackend) Execute(ctx context.Context) (*api.InvocationResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}

	result, err := b.executor.InvokeHandle(ctx, b.handle, b.inputs)
	if err != nil {
		return nil, err
	}
	b.outputs = result.Outputs
	return result, nil
}

// Close implements Backend.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.handle.Unlock()
	return nil
}

// EphemeralBackend drives a private instance that is not shared through
// the registry. Concurrent use is a programming error and fails.
type EphemeralBackend struct {
	loader  *engine.Loader
	wf      *engine.Workflow
	running atomic.Bool

	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc
	outputs map[string]interface{}
}

// OpenEphemeral loads a private instance of the workflow in dir.
func OpenEphemeral(ctx context.Context, loader *engine.Loader, dir string) (*EphemeralBackend, error) {
	wf, err := loader.Load(ctx, dir)
	if err != nil {
		return nil, api.NewLoadError(dir, err)
	}
	return &EphemeralBackend{loader: loader, wf: wf}, nil
}

// Inputs implements Backend.
func (b *EphemeralBackend) Inputs() []api.Parameter {
	return b.wf.InputParameters()
}

// SetInputs implements Backend.
func (b *EphemeralBackend) SetInputs(values map[string]interface{}) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBackendClosed
	}
	if b.running.Load() {
		return ErrAlreadyInUse
	}
	return b.wf.ApplyInputs(values)
}

// Outputs implements Backend.
func (b *EphemeralBackend) Outputs() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs
}

// Execute implements Backend.
func (b *EphemeralBackend) Execute(ctx context.Context) (*api.InvocationResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBackendClosed
	}
	if !b.running.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", b.wf.Dir(), ErrAlreadyInUse)
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		b.cancel = nil
		b.mu.Unlock()
		b.running.Store(false)
	}()

	start := time.Now()
	state := b.wf.Run(runCtx)
	result := &api.InvocationResult{Location: b.wf.Dir(), State: state, Duration: time.Since(start)}
	if state == api.StateExecuted {
		result.Outputs = b.wf.Outputs()
	} else {
		result.Message = api.JoinMessages(b.wf.Messages())
	}

	b.mu.Lock()
	b.outputs = result.Outputs
	b.mu.Unlock()
	return result, nil
}

// Close implements Backend. It interrupts a running Execute and removes the
// instance from the engine registry.
func (b *EphemeralBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	return b.loader.Unregister(b.wf)
}

var (
	_ Backend = (*LocalBackend)(nil)
	_ Backend = (*EphemeralBackend)(nil)
)
