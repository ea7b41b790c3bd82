package callee

import (
	"os"
	"time"
)

// Default registry settings.
const (
	DefaultMaxIdle      = 60 * time.Second
	DefaultMaxSize      = 3
	DefaultCleanupDelay = DefaultMaxIdle + time.Second
)

// EvictionCause tells why a handle left the registry.
type EvictionCause string

const (
	CauseExpired     EvictionCause = "expired"
	CauseInvalidated EvictionCause = "invalidated"
	CauseCapacity    EvictionCause = "capacity"
	CauseClosed      EvictionCause = "closed"
)

// EvictionListener is called after a handle was removed from the
// registry. inUse is true if destruction was deferred until unlock.
type EvictionListener func(info HandleInfo, cause EvictionCause, inUse bool)

// LoadListener is called after a handle was loaded and cached.
type LoadListener func(info HandleInfo)

// Clock abstracts time for the registry.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type options struct {
	maxIdle           time.Duration
	maxSize           int
	cleanupDelay      time.Duration
	loadTimeout       time.Duration
	clock             Clock
	evictionListeners []EvictionListener
	loadListeners     []LoadListener
	removeAll         func(string) error
}

func defaultOptions() options {
	return options{
		maxIdle:      DefaultMaxIdle,
		maxSize:      DefaultMaxSize,
		cleanupDelay: DefaultCleanupDelay,
		clock:        realClock{},
		removeAll:    os.RemoveAll,
	}
}

// Option configures a Registry.
type Option func(*options)

// WithMaxIdle sets how long a handle may stay unused before it is evicted.
func WithMaxIdle(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxIdle = d
		}
	}
}

// WithMaxSize bounds the number of cached handles.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithCleanupDelay sets the delay of the cleanup pass scheduled after a
// handle is unlocked.
func WithCleanupDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupDelay = d
		}
	}
}

// WithLoadTimeout bounds a single load. Zero disables the bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = d
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithEvictionListener adds a listener for evictions.
func WithEvictionListener(l EvictionListener) Option {
	return func(o *options) {
		o.evictionListeners = append(o.evictionListeners, l)
	}
}

// WithLoadListener adds a listener for loads.
func WithLoadListener(l LoadListener) Option {
	return func(o *options) {
		o.loadListeners = append(o.loadListeners, l)
	}
}

// WithRemoveAll replaces os.RemoveAll for deleting temporary directories.
func WithRemoveAll(fn func(string) error) Option {
	return func(o *options) {
		if fn != nil {
			o.removeAll = fn
		}
	}
}
