package invoke

import (
	"context"
	"errors"
	"time"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/engine"
	"subflow/pkg/logging"
)

// Runnable is the part of a loaded engine instance the executor drives.
type Runnable interface {
	ApplyInputs(values map[string]interface{}) error
	Run(ctx context.Context) api.TerminalState
	Outputs() map[string]interface{}
	Messages() []string
}

// ErrNotLocked is returned when Invoke is called on a handle the caller does
// not hold.
var ErrNotLocked = errors.New("workflow handle is not locked")

// Executor drives one invocation of a workflow instance.
type Executor struct{}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Invoke applies inputs, runs the workflow to completion and collects the
// result. The caller must hold the instance's lock for the whole call.
//
// Invalid inputs fail with api.InvalidInputError before anything runs. A
// run that does not reach EXECUTED is not an error here: the result carries
// the terminal state and the engine's messages.
func (e *Executor) Invoke(ctx context.Context, key string, wf Runnable, inputs map[string]interface{}) (*api.InvocationResult, error) {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	if err := wf.ApplyInputs(inputs); err != nil {
		logging.Debug("Executor", "Rejected inputs for %s: %v", key, err)
		return nil, err
	}

	start := time.Now()
	state := wf.Run(ctx)

	result := &api.InvocationResult{
		Location: key,
		State:    state,
		Duration: time.Since(start),
	}

	if state == api.StateExecuted {
		result.Outputs = wf.Outputs()
	} else {
		result.Message = api.JoinMessages(wf.Messages())
		logging.Info("Executor", "Workflow %s finished in state %s: %s", key, state, result.Message)
	}
	return result, nil
}

// InvokeHandle is Invoke on a cached handle. It fails with ErrNotLocked
// unless the handle is locked.
func (e *Executor) InvokeHandle(ctx context.Context, h *callee.Handle[*engine.Workflow], inputs map[string]interface{}) (*api.InvocationResult, error) {
	if !h.InUse() {
		return nil, ErrNotLocked
	}
	return e.Invoke(ctx, h.Location().Key(), h.Instance(), inputs)
}
