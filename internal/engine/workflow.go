package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"subflow/internal/api"
	"subflow/internal/template"
	"subflow/pkg/logging"
)

// Workflow is a loaded workflow instance. It keeps the inputs applied by
// the last ApplyInputs call and the outputs and messages of the last Run.
type Workflow struct {
	id  string
	dir string
	def *Definition

	tools     ToolCaller
	templates *template.Engine

	mu       sync.Mutex
	inputs   map[string]interface{}
	outputs  map[string]interface{}
	messages []string
	state    api.TerminalState
	cancel   context.CancelFunc
	loadedAt time.Time
}

// ID returns the instance id assigned at load time.
func (w *Workflow) ID() string { return w.id }

// Dir returns the directory the workflow was loaded from.
func (w *Workflow) Dir() string { return w.dir }

// Name returns the workflow name from its definition.
func (w *Workflow) Name() string { return w.def.Name }

// Definition returns the parsed definition. It must not be modified.
func (w *Workflow) Definition() *Definition { return w.def }

// LoadedAt returns when the instance was created.
func (w *Workflow) LoadedAt() time.Time { return w.loadedAt }

// InputParameters returns the declared inputs.
func (w *Workflow) InputParameters() []api.Parameter { return w.def.InputParameters() }

// OutputParameters returns the declared outputs.
func (w *Workflow) OutputParameters() []api.Parameter { return w.def.OutputParameters() }

// ApplyInputs validates values against the declared inputs and stores them
// for the next Run. Defaults are applied for inputs that are not given.
// On error the previously applied inputs are kept.
func (w *Workflow) ApplyInputs(values map[string]interface{}) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		decl, ok := w.def.Inputs[name]
		if !ok {
			return api.NewInvalidInputError(name, fmt.Sprintf("workflow '%s' declares no such input", w.def.Name))
		}
		if value := values[name]; !matchesType(value, decl.Type) {
			return api.NewInvalidInputError(name, fmt.Sprintf("expected %s, got %T", decl.Type, value))
		}
	}

	params := w.def.InputParameters()
	defaults := make(map[string]interface{}, len(params))
	for _, p := range params {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}
	applied := template.MergeContexts(defaults, values)

	for _, p := range params {
		if _, ok := applied[p.Name]; !ok && p.Required {
			return api.NewInvalidInputError(p.Name, "required input is missing")
		}
	}

	w.mu.Lock()
	w.inputs = applied
	w.mu.Unlock()
	return nil
}

// Run executes the steps in order and returns the terminal state. A step
// failure that is not allowed leaves the workflow IDLE. An interrupted run,
// through ctx or Cancel, ends in RUNNING since it never reached a terminal
// state.
func (w *Workflow) Run(ctx context.Context) api.TerminalState {
	runCtx, cancel := context.WithCancel(ctx)
	sink := &warningSink{}
	runCtx = context.WithValue(runCtx, warningsKey{}, sink)
	runCtx = context.WithValue(runCtx, workflowKey{}, w)

	w.mu.Lock()
	inputs := w.inputs
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	w.cancel = cancel
	w.outputs = nil
	w.messages = nil
	w.state = api.StateRunning
	w.mu.Unlock()

	defer cancel()

	state, outputs, errs := w.execute(runCtx, inputs)

	messages := append(errs, sink.list()...)

	w.mu.Lock()
	w.state = state
	w.outputs = outputs
	w.messages = messages
	w.cancel = nil
	w.mu.Unlock()

	logging.Debug("Engine", "Workflow %s (%s) finished in state %s", w.def.Name, w.id, state)
	return state
}

func (w *Workflow) execute(ctx context.Context, inputs map[string]interface{}) (api.TerminalState, map[string]interface{}, []string) {
	results := make(map[string]interface{}, len(w.def.Steps))
	templateCtx := map[string]interface{}{
		"inputs": inputs,
		"steps":  results,
	}

	for _, step := range w.def.Steps {
		if err := ctx.Err(); err != nil {
			return api.StateRunning, nil, []string{fmt.Sprintf("run interrupted before step '%s': %v", step.ID, err)}
		}

		args, err := w.resolveArgs(step, templateCtx)
		if err != nil {
			return api.StateIdle, nil, []string{fmt.Sprintf("step '%s': %v", step.ID, err)}
		}

		logging.Debug("Engine", "Workflow %s: running step %s (tool %s)", w.def.Name, step.ID, step.Tool)
		result, err := w.tools.CallTool(ctx, step.Tool, args)
		if err != nil {
			if ctx.Err() != nil {
				return api.StateRunning, nil, []string{fmt.Sprintf("run interrupted in step '%s': %v", step.ID, err)}
			}
			if step.AllowFailure {
				ReportWarning(ctx, "step '%s' failed: %v", step.ID, err)
				results[step.ID] = map[string]interface{}{"error": err.Error()}
				continue
			}
			return api.StateIdle, nil, []string{fmt.Sprintf("step '%s' failed: %v", step.ID, err)}
		}
		if result == nil {
			result = map[string]interface{}{}
		}
		results[step.ID] = result
	}

	outputs, err := w.renderOutputs(templateCtx)
	if err != nil {
		return api.StateIdle, nil, []string{err.Error()}
	}
	return api.StateExecuted, outputs, nil
}

func (w *Workflow) resolveArgs(step Step, templateCtx map[string]interface{}) (map[string]interface{}, error) {
	if len(step.Args) == 0 {
		return map[string]interface{}{}, nil
	}
	resolved, err := w.templates.Replace(step.Args, templateCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render arguments: %w", err)
	}
	return resolved.(map[string]interface{}), nil
}

func (w *Workflow) renderOutputs(templateCtx map[string]interface{}) (map[string]interface{}, error) {
	outputs := make(map[string]interface{}, len(w.def.Outputs))
	for name, decl := range w.def.Outputs {
		value, err := w.templates.Replace(decl.Value, templateCtx)
		if err != nil {
			return nil, fmt.Errorf("output '%s': %w", name, err)
		}
		if decl.Type != "" && !matchesType(value, decl.Type) {
			return nil, fmt.Errorf("output '%s': expected %s, got %T", name, decl.Type, value)
		}
		outputs[name] = value
	}
	return outputs, nil
}

// Outputs returns the outputs of the last run. It is empty unless the run
// reached EXECUTED.
func (w *Workflow) Outputs() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]interface{}, len(w.outputs))
	for k, v := range w.outputs {
		out[k] = v
	}
	return out
}

// Messages returns the error and warning messages of the last run.
func (w *Workflow) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// State returns the state of the last run, IDLE if it never ran.
func (w *Workflow) State() api.TerminalState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == "" {
		return api.StateIdle
	}
	return w.state
}

// Cancel interrupts a run in progress. It is safe to call at any time.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type workflowKey struct{}

// FromContext returns the workflow whose run ctx belongs to. Tools use it
// to find the calling workflow.
func FromContext(ctx context.Context) (*Workflow, bool) {
	wf, ok := ctx.Value(workflowKey{}).(*Workflow)
	return wf, ok
}
