package app

import (
	"context"
	"errors"
	"fmt"

	"subflow/internal/callee"
	"subflow/internal/config"
	"subflow/internal/engine"
	"subflow/internal/fetch"
	"subflow/internal/invoke"
	"subflow/internal/location"
	"subflow/internal/watch"
	"subflow/internal/workpool"
	"subflow/pkg/logging"
)

// Services holds the runtime components of the application.
type Services struct {
	Resolver *location.Resolver

	// Tools are the engine tools available to workflow steps, including
	// "call".
	Tools *engine.Toolbox

	// Engine loads workflows directly, bypassing the callee registry. It
	// backs ephemeral runs.
	Engine *engine.Loader

	Registry *callee.Registry[*engine.Workflow]
	Pool     *workpool.Pool
	Service  *invoke.Service

	// Watcher is nil when watching is disabled.
	Watcher *watch.Watcher
}

// InitializeServices builds the runtime from cfg.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	sc := cfg.Subflow
	if sc == nil {
		defaults := config.GetDefaultConfig()
		sc = &defaults
	}

	s := &Services{
		Resolver: location.NewResolver(cfg.WorkingDir),
		Tools:    engine.NewToolbox(),
	}
	s.Engine = engine.NewLoader(engine.NewRegistry(), s.Tools)

	fetcher := fetch.New(fetch.Options{
		Timeout:    sc.Remote.Timeout,
		MaxRetries: sc.Remote.MaxRetries,
		TempDir:    sc.Remote.TempDir,
	})

	if sc.Watch.Enabled {
		s.Watcher = watch.New(sc.Watch.Debounce, func(loc location.Location) {
			if s.Registry.Invalidate(loc) {
				logging.Info("Bootstrap", "Reloading %s on next call", loc)
			}
		})
	}

	opts := []callee.Option{
		callee.WithMaxIdle(sc.Cache.MaxIdle),
		callee.WithMaxSize(sc.Cache.MaxSize),
		callee.WithCleanupDelay(sc.Cache.CleanupDelay),
		callee.WithLoadTimeout(sc.Cache.LoadTimeout),
		callee.WithEvictionListener(s.onEvicted),
	}
	if s.Watcher != nil {
		opts = append(opts, callee.WithLoadListener(s.onLoaded))
	}
	s.Registry = callee.NewRegistry[*engine.Workflow](invoke.NewLoader(s.Engine, fetcher), opts...)

	s.Pool = workpool.New(sc.Pool.Interactive, sc.Pool.Background)
	s.Service = invoke.NewService(s.Resolver, s.Registry, s.Pool, invoke.NewTracker(invoke.DefaultHistorySize))
	s.Tools.Register("call", s.Service.CallTool())

	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx); err != nil {
			// Invalidation on change is a convenience; calls still work.
			logging.Warn("Bootstrap", "Filesystem watcher unavailable: %v", err)
			s.Watcher = nil
		}
	}

	logging.Debug("Bootstrap", "Runtime initialized (cache size %d, idle %s, tools %v)",
		sc.Cache.MaxSize, sc.Cache.MaxIdle, s.Tools.Names())
	return s, nil
}

func (s *Services) onLoaded(info callee.HandleInfo) {
	if s.Watcher == nil || info.DiscardAfterUse {
		return
	}
	loc := location.Location{Kind: location.KindLocal, Path: info.Dir}
	if err := s.Watcher.Watch(loc, info.Dir); err != nil {
		logging.Warn("Bootstrap", "Cannot watch %s: %v", info.Dir, err)
	}
}

// onEvicted keeps the watcher in sync and closes the evicted workflow as a
// caller, which evicts the workflows it loaded.
func (s *Services) onEvicted(info callee.HandleInfo, cause callee.EvictionCause, inUse bool) {
	if s.Watcher != nil && !info.DiscardAfterUse {
		s.Watcher.Unwatch(info.Dir)
	}
	if n := s.Service.CloseCaller(info.Dir); n > 0 {
		logging.Debug("Bootstrap", "Evicting %s (%s) also evicted %d callee workflows", info.Location, cause, n)
	}
}

// Close stops the watcher, closes the registry and waits for in-flight
// pool work.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Watcher != nil {
		if err := s.Watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop watcher: %w", err))
		}
	}
	if err := s.Registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close registry: %w", err))
	}

	done := make(chan struct{})
	go func() {
		s.Pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("worker pool still busy: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
