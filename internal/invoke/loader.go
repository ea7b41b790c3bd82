package invoke

import (
	"context"
	"fmt"
	"os"

	"subflow/internal/callee"
	"subflow/internal/engine"
	"subflow/internal/fetch"
	"subflow/internal/location"
	"subflow/pkg/logging"
)

// Loader loads local workflows in place and remote workflows through a
// download into a temporary directory. It implements
// callee.Loader[*engine.Workflow].
type Loader struct {
	engine  *engine.Loader
	fetcher *fetch.Fetcher
}

// NewLoader creates a Loader. fetcher may be nil, in which case remote
// locations fail to load.
func NewLoader(engineLoader *engine.Loader, fetcher *fetch.Fetcher) *Loader {
	return &Loader{engine: engineLoader, fetcher: fetcher}
}

// Load implements callee.Loader.
func (l *Loader) Load(ctx context.Context, loc location.Location) (callee.Loaded[*engine.Workflow], error) {
	switch loc.Kind {
	case location.KindLocal:
		wf, err := l.engine.Load(ctx, loc.Path)
		if err != nil {
			return callee.Loaded[*engine.Workflow]{}, err
		}
		return callee.Loaded[*engine.Workflow]{Instance: wf, Dir: loc.Path}, nil

	case location.KindRemote:
		if l.fetcher == nil {
			return callee.Loaded[*engine.Workflow]{}, fmt.Errorf("remote workflows are not supported")
		}
		dir, root, err := l.fetcher.Fetch(ctx, loc.URL)
		if err != nil {
			return callee.Loaded[*engine.Workflow]{}, err
		}
		wf, err := l.engine.Load(ctx, dir)
		if err != nil {
			if rmErr := os.RemoveAll(root); rmErr != nil {
				logging.Warn("Fetcher", "Failed to remove %s: %v", root, rmErr)
			}
			return callee.Loaded[*engine.Workflow]{}, err
		}
		return callee.Loaded[*engine.Workflow]{Instance: wf, Dir: dir, Temporary: true, Root: root}, nil

	default:
		return callee.Loaded[*engine.Workflow]{}, fmt.Errorf("unsupported location kind %s", loc.Kind)
	}
}

// Unregister implements callee.Loader.
func (l *Loader) Unregister(wf *engine.Workflow) error {
	return l.engine.Unregister(wf)
}
