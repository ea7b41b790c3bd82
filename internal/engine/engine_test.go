package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subflow/internal/api"
)

const greetWorkflow = `
name: greet
description: Greets someone
inputs:
  name:
    type: string
    required: true
  times:
    type: integer
    default: 1
outputs:
  message:
    type: string
    value: "{{ .steps.hello.text | upper }}"
  times:
    value: "{{ .inputs.times }}"
steps:
  - id: hello
    tool: echo
    args:
      text: "hello {{ .inputs.name }}"
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefinitionFile), []byte(content), 0644))
	return dir
}

func newTestLoader() (*Loader, *Registry, *Toolbox) {
	registry := NewRegistry()
	tools := NewToolbox()
	return NewLoader(registry, tools), registry, tools
}

func TestLoader_LoadAndRun(t *testing.T) {
	loader, registry, _ := newTestLoader()
	dir := writeWorkflow(t, greetWorkflow)

	wf, err := loader.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID())
	assert.Equal(t, "greet", wf.Name())
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, wf.ApplyInputs(map[string]interface{}{"name": "world"}))
	state := wf.Run(context.Background())

	assert.Equal(t, api.StateExecuted, state)
	assert.Equal(t, map[string]interface{}{"message": "HELLO WORLD", "times": 1}, wf.Outputs())
	assert.Empty(t, wf.Messages())

	require.NoError(t, loader.Unregister(wf))
	assert.Equal(t, 0, registry.Len())
	assert.Error(t, loader.Unregister(wf))
}

func TestLoader_Errors(t *testing.T) {
	loader, registry, _ := newTestLoader()

	tests := []struct {
		name    string
		dir     func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing directory",
			dir:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			wantErr: "failed to access workflow directory",
		},
		{
			name:    "no definition",
			dir:     func(t *testing.T) string { return t.TempDir() },
			wantErr: "does not contain",
		},
		{
			name:    "malformed yaml",
			dir:     func(t *testing.T) string { return writeWorkflow(t, "name: [") },
			wantErr: "failed to parse",
		},
		{
			name:    "unknown field",
			dir:     func(t *testing.T) string { return writeWorkflow(t, "name: x\nbogus: 1\nsteps: []") },
			wantErr: "bogus",
		},
		{
			name:    "unknown tool",
			dir:     func(t *testing.T) string { return writeWorkflow(t, "name: x\nsteps:\n  - id: a\n    tool: nope") },
			wantErr: "unknown tool 'nope'",
		},
		{
			name:    "relative directory",
			dir:     func(t *testing.T) string { return "relative/dir" },
			wantErr: "not absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), tt.dir(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Equal(t, 0, registry.Len())
}

func TestLoader_CanceledContext(t *testing.T) {
	loader, _, _ := newTestLoader()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, writeWorkflow(t, greetWorkflow))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateDefinition(t *testing.T) {
	tools := NewToolbox()

	tests := []struct {
		name     string
		yaml     string
		wantErrs []string
	}{
		{
			name:     "no steps",
			yaml:     "name: empty",
			wantErrs: []string{"at least one step"},
		},
		{
			name:     "duplicate step",
			yaml:     "name: dup\nsteps:\n  - id: a\n    tool: echo\n  - id: a\n    tool: echo",
			wantErrs: []string{"duplicate step ID 'a'"},
		},
		{
			name:     "bad input type",
			yaml:     "name: t\ninputs:\n  x:\n    type: date\nsteps:\n  - id: a\n    tool: echo",
			wantErrs: []string{"must be one of"},
		},
		{
			name:     "default type mismatch",
			yaml:     "name: t\ninputs:\n  x:\n    type: integer\n    default: abc\nsteps:\n  - id: a\n    tool: echo",
			wantErrs: []string{"default does not match type integer"},
		},
		{
			name:     "undeclared input",
			yaml:     "name: t\nsteps:\n  - id: a\n    tool: echo\n    args:\n      v: \"{{ .inputs.missing }}\"",
			wantErrs: []string{"undeclared input 'missing'"},
		},
		{
			name:     "forward step reference",
			yaml:     "name: t\nsteps:\n  - id: a\n    tool: echo\n    args:\n      v: \"{{ .steps.b.x }}\"\n  - id: b\n    tool: echo",
			wantErrs: []string{"step 'b' which does not run earlier"},
		},
		{
			name:     "name with whitespace",
			yaml:     "name: bad name\nsteps:\n  - id: a\n    tool: echo",
			wantErrs: []string{"cannot contain whitespace"},
		},
		{
			name:     "missing output value",
			yaml:     "name: t\noutputs:\n  o:\n    type: string\nsteps:\n  - id: a\n    tool: echo",
			wantErrs: []string{"output value is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition([]byte(tt.yaml))
			require.NoError(t, err)

			err = ValidateDefinition(def, tools)
			require.Error(t, err)
			for _, want := range tt.wantErrs {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestWorkflow_ApplyInputs(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, greetWorkflow))
	require.NoError(t, err)

	tests := []struct {
		name      string
		inputs    map[string]interface{}
		wantParam string
	}{
		{name: "unknown key", inputs: map[string]interface{}{"name": "x", "other": 1}, wantParam: "other"},
		{name: "wrong type", inputs: map[string]interface{}{"name": 42}, wantParam: "name"},
		{name: "fractional integer", inputs: map[string]interface{}{"name": "x", "times": 1.5}, wantParam: "times"},
		{name: "missing required", inputs: map[string]interface{}{}, wantParam: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wf.ApplyInputs(tt.inputs)
			require.Error(t, err)

			var inputErr *api.InvalidInputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.wantParam, inputErr.Parameter)
		})
	}

	// JSON style numbers are accepted for integers
	assert.NoError(t, wf.ApplyInputs(map[string]interface{}{"name": "x", "times": float64(3)}))
}

func TestWorkflow_ApplyInputsLayersValuesOverDefaults(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, greetWorkflow))
	require.NoError(t, err)

	supplied := map[string]interface{}{"name": "ada", "times": 4}
	require.NoError(t, wf.ApplyInputs(supplied))
	assert.Len(t, supplied, 2)

	require.Equal(t, api.StateExecuted, wf.Run(context.Background()))
	assert.Equal(t, map[string]interface{}{"message": "HELLO ADA", "times": 4}, wf.Outputs())

	// a rejected call keeps the previous inputs
	require.Error(t, wf.ApplyInputs(map[string]interface{}{"times": 2}))
	require.Equal(t, api.StateExecuted, wf.Run(context.Background()))
	assert.Equal(t, 4, wf.Outputs()["times"])

	require.NoError(t, wf.ApplyInputs(map[string]interface{}{"name": "bob"}))
	require.Equal(t, api.StateExecuted, wf.Run(context.Background()))
	assert.Equal(t, 1, wf.Outputs()["times"])
}

func TestWorkflow_FailingStepLeavesIdle(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, `
name: failing
steps:
  - id: soft
    tool: fail
    allowFailure: true
    args:
      message: ignorable
  - id: note
    tool: warn
    args:
      message: careful
  - id: hard
    tool: fail
    args:
      message: boom
`))
	require.NoError(t, err)
	require.NoError(t, wf.ApplyInputs(nil))

	state := wf.Run(context.Background())

	assert.Equal(t, api.StateIdle, state)
	assert.Equal(t, api.StateIdle, wf.State())
	assert.Empty(t, wf.Outputs())
	messages := wf.Messages()
	require.Len(t, messages, 3)
	assert.Contains(t, messages[0], "boom")
	assert.Contains(t, messages[1], "ignorable")
	assert.Equal(t, "careful", messages[2])
}

func TestWorkflow_CancelInterruptsRun(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, `
name: slow
steps:
  - id: wait
    tool: sleep
    args:
      duration: 10s
`))
	require.NoError(t, err)
	require.NoError(t, wf.ApplyInputs(nil))

	done := make(chan api.TerminalState, 1)
	go func() { done <- wf.Run(context.Background()) }()

	// Cancel until the run has picked it up.
	require.Eventually(t, func() bool {
		wf.Cancel()
		select {
		case state := <-done:
			assert.Equal(t, api.StateRunning, state)
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, wf.Messages())
}

func TestWorkflow_ContextCanceled(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, greetWorkflow))
	require.NoError(t, err)
	require.NoError(t, wf.ApplyInputs(map[string]interface{}{"name": "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, api.StateRunning, wf.Run(ctx))
}

func TestWorkflow_Parameters(t *testing.T) {
	loader, _, _ := newTestLoader()
	wf, err := loader.Load(context.Background(), writeWorkflow(t, greetWorkflow))
	require.NoError(t, err)

	inputs := wf.InputParameters()
	require.Len(t, inputs, 2)
	assert.Equal(t, "name", inputs[0].Name)
	assert.True(t, inputs[0].Required)
	assert.Equal(t, "times", inputs[1].Name)
	assert.Equal(t, 1, inputs[1].Default)

	outputs := wf.OutputParameters()
	require.Len(t, outputs, 2)
	assert.Equal(t, api.TypeString, outputs[0].Type)
	assert.Equal(t, api.TypeAny, outputs[1].Type)
}

func TestToolbox(t *testing.T) {
	tb := NewToolbox()
	assert.Equal(t, []string{"echo", "fail", "sleep", "warn"}, tb.Names())

	tb.Register("custom", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	assert.True(t, tb.HasTool("custom"))

	result, err := tb.CallTool(context.Background(), "custom", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])

	_, err = tb.CallTool(context.Background(), "missing", nil)
	assert.Error(t, err)

	result, err = tb.CallTool(context.Background(), "sleep", map[string]interface{}{"duration": "1ms"})
	require.NoError(t, err)
	assert.Equal(t, "1ms", result["slept"])

	_, err = tb.CallTool(context.Background(), "sleep", map[string]interface{}{"duration": true})
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	loader, _, tools := newTestLoader()
	var seen *Workflow
	tools.Register("probe", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		seen, _ = FromContext(ctx)
		return nil, nil
	})

	wf, err := loader.Load(context.Background(), writeWorkflow(t, "name: probe\nsteps:\n  - id: p\n    tool: probe\n"))
	require.NoError(t, err)
	require.NoError(t, wf.ApplyInputs(nil))
	assert.Equal(t, api.StateExecuted, wf.Run(context.Background()))
	assert.Same(t, wf, seen)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
