package callee

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subflow/internal/location"
)

type fakeInstance struct {
	id         string
	cancelOnce sync.Once
	canceled   chan struct{}
}

func newFakeInstance(id string) *fakeInstance {
	return &fakeInstance{id: id, canceled: make(chan struct{})}
}

func (f *fakeInstance) ID() string { return f.id }

func (f *fakeInstance) Cancel() {
	f.cancelOnce.Do(func() { close(f.canceled) })
}

type fakeLoader struct {
	mu           sync.Mutex
	loads        map[string]int
	unregistered map[string]int
	seq          atomic.Int32

	delay     time.Duration
	err       error
	temporary bool
	dir       func(loc location.Location) string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		loads:        make(map[string]int),
		unregistered: make(map[string]int),
	}
}

func (l *fakeLoader) Load(ctx context.Context, loc location.Location) (Loaded[*fakeInstance], error) {
	l.mu.Lock()
	l.loads[loc.Key()]++
	delay, loadErr := l.delay, l.err
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Loaded[*fakeInstance]{}, ctx.Err()
		}
	}
	if loadErr != nil {
		return Loaded[*fakeInstance]{}, loadErr
	}

	dir := loc.Path
	if l.dir != nil {
		dir = l.dir(loc)
	}
	return Loaded[*fakeInstance]{
		Instance:  newFakeInstance(fmt.Sprintf("instance-%d", l.seq.Add(1))),
		Dir:       dir,
		Temporary: l.temporary,
	}, nil
}

func (l *fakeLoader) Unregister(instance *fakeInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unregistered[instance.ID()]++
	return nil
}

func (l *fakeLoader) loadCount(loc location.Location) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[loc.Key()]
}

func (l *fakeLoader) unregisterCount(instance *fakeInstance) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unregistered[instance.ID()]
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.fired.Load() && t.stopped.CompareAndSwap(false, true)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs the timers that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var pending []*fakeTimer
	for _, t := range c.timers {
		if t.stopped.Load() {
			continue
		}
		if !t.at.After(c.now) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, t := range due {
		t.fired.Store(true)
		t.f()
	}
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

func localLocation(t *testing.T, name string) location.Location {
	t.Helper()
	return location.Location{Kind: location.KindLocal, Path: filepath.Join("/wf", name)}
}

func tempWorkflowDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "download")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yaml"), []byte("name: x\n"), 0o640))
	return dir
}
