package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"subflow/internal/template"
	"subflow/pkg/logging"
)

// Loader creates workflow instances from directories.
type Loader struct {
	registry  *Registry
	tools     *Toolbox
	templates *template.Engine
}

// NewLoader creates a loader that registers instances in registry and runs
// their steps through tools.
func NewLoader(registry *Registry, tools *Toolbox) *Loader {
	return &Loader{
		registry:  registry,
		tools:     tools,
		templates: template.New(),
	}
}

// Load reads, validates and instantiates the workflow in dir and registers
// the instance. dir must be absolute.
func (l *Loader) Load(ctx context.Context, dir string) (*Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("workflow directory %s is not absolute", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access workflow directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	def, err := ReadDefinition(dir)
	if err != nil {
		return nil, err
	}
	if err := ValidateDefinition(def, l.tools); err != nil {
		return nil, err
	}

	wf := &Workflow{
		id:        uuid.New().String(),
		dir:       dir,
		def:       def,
		tools:     l.tools,
		templates: l.templates,
		loadedAt:  time.Now(),
	}
	if err := l.registry.Register(wf); err != nil {
		return nil, err
	}

	logging.Info("Engine", "Loaded workflow %s from %s (instance %s)", def.Name, dir, wf.id)
	return wf, nil
}

// Unregister removes an instance from the registry. It is the teardown
// counterpart of Load.
func (l *Loader) Unregister(wf *Workflow) error {
	if err := l.registry.Unregister(wf.ID()); err != nil {
		return err
	}
	logging.Debug("Engine", "Unregistered workflow instance %s", wf.ID())
	return nil
}
