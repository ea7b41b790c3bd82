// Package workpool is the shared, bounded worker pool callers run on.
//
// Tasks belong to one of two classes. Interactive tasks are the ones a user
// waits on directly. Background tasks, such as callee invocations issued by
// batch callers, have their own slots so that a saturated background class
// never takes capacity away from interactive work.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"subflow/pkg/logging"
)

var errPanicked = errors.New("task panicked")

// Class is the scheduling class of a task.
type Class int

const (
	Interactive Class = iota
	Background
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case Interactive:
		return "interactive"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Pool runs tasks with a bounded number of concurrent tasks per class.
type Pool struct {
	slots map[Class]*semaphore.Weighted
	sizes map[Class]int
	wg    sync.WaitGroup
}

// New creates a pool with the given number of slots per class. Sizes below
// one are raised to one.
func New(interactive, background int) *Pool {
	if interactive < 1 {
		interactive = 1
	}
	if background < 1 {
		background = 1
	}
	return &Pool{
		slots: map[Class]*semaphore.Weighted{
			Interactive: semaphore.NewWeighted(int64(interactive)),
			Background:  semaphore.NewWeighted(int64(background)),
		},
		sizes: map[Class]int{
			Interactive: interactive,
			Background:  background,
		},
	}
}

// Size returns the number of slots of class.
func (p *Pool) Size(class Class) int {
	return p.sizes[class]
}

// Go waits for a free slot of class and runs fn on a new goroutine. It
// returns an error without running fn if ctx ends first.
func (p *Pool) Go(ctx context.Context, class Class, fn func(ctx context.Context)) error {
	sem, ok := p.slots[class]
	if !ok {
		return fmt.Errorf("unknown task class %d", class)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Pool", fmt.Errorf("panic: %v", r), "Recovered panic in %s task", class)
			}
		}()
		fn(ctx)
	}()
	return nil
}

// Run is Go followed by waiting for fn to finish.
func (p *Pool) Run(ctx context.Context, class Class, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := p.Go(ctx, class, func(ctx context.Context) {
		result := errPanicked
		defer func() { done <- result }()
		result = fn(ctx)
	})
	if err != nil {
		return err
	}
	return <-done
}

// Wait blocks until every started task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
