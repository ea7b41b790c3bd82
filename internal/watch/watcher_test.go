package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subflow/internal/location"
)

type recorder struct {
	mu      sync.Mutex
	changed []location.Location
}

func (r *recorder) record(loc location.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, loc)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed)
}

func TestWatcher_DebouncedChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: a\n"), 0o640))

	rec := &recorder{}
	w := New(50*time.Millisecond, rec.record)
	loc := location.Location{Kind: location.KindLocal, Path: dir}
	require.NoError(t, w.Watch(loc, dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("name: b\n"), 0o640))
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, loc, rec.changed[0])
}

func TestWatcher_UnwatchStopsNotifications(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(20*time.Millisecond, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, w.Watch(location.Location{Kind: location.KindLocal, Path: dir}, dir))
	assert.Equal(t, []string{dir}, w.Watched())

	w.Unwatch(dir)
	assert.Empty(t, w.Watched())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yaml"), []byte("x"), 0o640))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(0, func(location.Location) {})
	assert.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_WatchMissingDirectory(t *testing.T) {
	w := New(0, func(location.Location) {})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	missing := filepath.Join(t.TempDir(), "missing")
	assert.Error(t, w.Watch(location.Location{Kind: location.KindLocal, Path: missing}, missing))
	assert.Empty(t, w.Watched())
}
