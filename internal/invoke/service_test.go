package invoke

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/engine"
	"subflow/internal/fetch"
	"subflow/internal/location"
	"subflow/internal/workpool"
)

const greetWorkflow = `
name: greet
inputs:
  name:
    type: string
    required: true
outputs:
  message:
    type: string
    value: "{{ .steps.hello.text }}"
steps:
  - id: hello
    tool: echo
    args:
      text: "hello {{ .inputs.name }}"
`

const failingWorkflow = `
name: failing
inputs:
  reason:
    type: string
    default: broken
steps:
  - id: note
    tool: warn
    args:
      message: about to fail
  - id: boom
    tool: fail
    args:
      message: "{{ .inputs.reason }}"
`

const slowWorkflow = `
name: slow
inputs:
  id:
    type: integer
outputs:
  id:
    value: "{{ .inputs.id }}"
steps:
  - id: wait
    tool: sleep
    args:
      duration: 30ms
`

const parentWorkflow = `
name: parent
inputs:
  text:
    type: string
    required: true
outputs:
  greeting:
    type: string
    value: "{{ .steps.child.message }}"
steps:
  - id: child
    tool: call
    args:
      workflow: workflow://../greet
      inputs:
        name: "{{ .inputs.text }}"
`

type fixture struct {
	root     string
	engines  *engine.Registry
	loader   *engine.Loader
	registry *callee.Registry[*engine.Workflow]
	service  *Service
}

func newFixture(t *testing.T, opts ...callee.Option) *fixture {
	t.Helper()
	root := t.TempDir()
	if evaluated, err := filepath.EvalSymlinks(root); err == nil {
		root = evaluated
	}

	engines := engine.NewRegistry()
	tools := engine.NewToolbox()
	engineLoader := engine.NewLoader(engines, tools)
	fetcher := fetch.New(fetch.Options{TempDir: t.TempDir(), BaseDelay: time.Millisecond})

	registry := callee.NewRegistry[*engine.Workflow](NewLoader(engineLoader, fetcher), opts...)
	service := NewService(location.NewResolver(root), registry, workpool.New(2, 2), NewTracker(10))
	tools.Register("call", service.CallTool())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Close(ctx)
	})

	return &fixture{root: root, engines: engines, loader: engineLoader, registry: registry, service: service}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	dir := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, engine.DefinitionFile), []byte(content), 0o640))
	return dir
}

func (f *fixture) handle(t *testing.T, dir string) *callee.Handle[*engine.Workflow] {
	t.Helper()
	h, err := f.registry.Get(context.Background(), location.Location{Kind: location.KindLocal, Path: dir})
	require.NoError(t, err)
	return h
}

func TestService_CallReusesCachedWorkflow(t *testing.T) {
	f := newFixture(t)
	f.write(t, "greet", greetWorkflow)

	for _, name := range []string{"ada", "grace"} {
		result, err := f.service.Call(context.Background(), Request{
			Target: "greet",
			Inputs: map[string]interface{}{"name": name},
		})
		require.NoError(t, err)
		assert.Equal(t, api.StateExecuted, result.State)
		assert.Equal(t, map[string]interface{}{"message": "hello " + name}, result.Outputs)
		assert.NotEmpty(t, result.InvocationID)
		assert.Empty(t, result.Message)
	}

	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, 1, f.engines.Len())
	assert.Len(t, f.service.History(), 2)
}

func TestService_UnknownInputReleasesLock(t *testing.T) {
	f := newFixture(t)
	dir := f.write(t, "greet", greetWorkflow)

	result, err := f.service.Call(context.Background(), Request{
		Target: "greet",
		Inputs: map[string]interface{}{"name": "ada", "nickname": "countess"},
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, api.IsInvalidInputError(err))

	h := f.handle(t, dir)
	assert.False(t, h.InUse())
	assert.Equal(t, callee.StateIdle, h.State())

	// the handle stays cached and usable
	result, err = f.service.Call(context.Background(), Request{Target: "greet", Inputs: map[string]interface{}{"name": "ada"}})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestService_ExecutionFailure(t *testing.T) {
	f := newFixture(t)
	dir := f.write(t, "failing", failingWorkflow)

	result, err := f.service.Call(context.Background(), Request{Target: dir})
	require.Error(t, err)
	assert.True(t, api.IsExecutionFailure(err))
	require.NotNil(t, result)
	assert.Equal(t, api.StateIdle, result.State)
	assert.Contains(t, result.Message, "broken")
	assert.Contains(t, result.Message, "about to fail")

	assert.True(t, f.registry.Contains(location.Location{Kind: location.KindLocal, Path: dir}))
	assert.False(t, f.handle(t, dir).InUse())

	history := f.service.History()
	require.Len(t, history, 1)
	assert.Equal(t, InvocationFailed, history[0].Status)
	assert.Equal(t, api.StateIdle, history[0].State)
}

func TestService_ResolutionAndLoadErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Call(context.Background(), Request{Target: "ftp://example.com/wf"})
	assert.True(t, api.IsResolutionError(err))

	_, err = f.service.Call(context.Background(), Request{Target: "workflow://sibling"})
	assert.True(t, api.IsResolutionError(err))

	_, err = f.service.Call(context.Background(), Request{Target: "does-not-exist"})
	assert.True(t, api.IsLoadError(err))
	assert.Equal(t, 0, f.registry.Len())
}

func TestService_NestedCallAndCloseCaller(t *testing.T) {
	f := newFixture(t)
	greetDir := f.write(t, "greet", greetWorkflow)
	parentDir := f.write(t, "parent", parentWorkflow)

	result, err := f.service.Call(context.Background(), Request{
		Target: "parent",
		Inputs: map[string]interface{}{"text": "world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Outputs["greeting"])

	greetLoc := location.Location{Kind: location.KindLocal, Path: greetDir}
	assert.True(t, f.registry.Contains(greetLoc))
	assert.Equal(t, []location.Location{greetLoc}, f.registry.TrackedBy(parentDir))

	assert.Equal(t, 1, f.service.CloseCaller(parentDir))
	assert.False(t, f.registry.Contains(greetLoc))
	assert.Equal(t, 1, f.registry.Len())
}

func TestService_RemoteWorkflowIsDiscardedAfterUse(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("greet/workflow.yaml")
	require.NoError(t, err)
	_, err = w.Write([]byte(greetWorkflow))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := newFixture(t)
	result, err := f.service.Call(context.Background(), Request{
		Target: srv.URL + "/greet.zip",
		Inputs: map[string]interface{}{"name": "remote"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello remote", result.Outputs["message"])

	snapshot := f.registry.Snapshot()
	require.Len(t, snapshot, 1)
	assert.True(t, snapshot[0].DiscardAfterUse)
	dir := snapshot[0].Dir
	assert.DirExists(t, dir)

	loc, err := f.service.Resolve(srv.URL+"/greet.zip", "")
	require.NoError(t, err)
	require.True(t, f.registry.Invalidate(loc))
	assert.NoDirExists(t, dir)
	assert.NoDirExists(t, filepath.Dir(dir))
	assert.Equal(t, 0, f.engines.Len())
}

func TestService_BatchSerializesSameTarget(t *testing.T) {
	f := newFixture(t)
	f.write(t, "slow", slowWorkflow)
	f.write(t, "failing", failingWorkflow)

	reqs := []Request{
		{Target: "slow", Inputs: map[string]interface{}{"id": 1}},
		{Target: "slow", Inputs: map[string]interface{}{"id": 2}},
		{Target: "failing"},
		{Target: "slow", Inputs: map[string]interface{}{"id": 3}},
	}

	start := time.Now()
	outcomes := f.service.Batch(context.Background(), reqs)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 4)
	for i, o := range outcomes {
		assert.Equal(t, reqs[i], o.Request)
		if reqs[i].Target == "failing" {
			assert.True(t, api.IsExecutionFailure(o.Err))
			continue
		}
		require.NoError(t, o.Err)
		assert.Equal(t, reqs[i].Inputs["id"], o.Result.Outputs["id"])
	}

	// three runs of the same workflow cannot overlap
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Equal(t, 2, f.registry.Len())
}

func TestService_RetriesWhenHandleDiscardedWhileWaiting(t *testing.T) {
	f := newFixture(t)
	dir := f.write(t, "greet", greetWorkflow)
	loc := location.Location{Kind: location.KindLocal, Path: dir}

	backend, err := f.service.Open(context.Background(), "greet", "")
	require.NoError(t, err)
	held := backend.Handle()

	var wg sync.WaitGroup
	var result *api.InvocationResult
	var callErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, callErr = f.service.Call(context.Background(), Request{Target: "greet", Inputs: map[string]interface{}{"name": "again"}})
	}()

	require.Eventually(t, func() bool { return f.registry.Snapshot()[0].Waiting == 1 }, time.Second, time.Millisecond)
	require.True(t, f.registry.Invalidate(loc))
	require.NoError(t, backend.Close())
	wg.Wait()

	require.NoError(t, callErr)
	assert.Equal(t, "hello again", result.Outputs["message"])
	assert.Equal(t, callee.StateDestroyed, held.State())
	assert.NotSame(t, held, f.handle(t, dir))
}

func TestService_CallCanceledWhileWaiting(t *testing.T) {
	f := newFixture(t)
	f.write(t, "greet", greetWorkflow)

	backend, err := f.service.Open(context.Background(), "greet", "")
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = f.service.Call(ctx, Request{Target: "greet", Inputs: map[string]interface{}{"name": "x"}})
	assert.True(t, api.IsConcurrencyError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
