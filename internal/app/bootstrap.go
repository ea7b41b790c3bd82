package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"subflow/internal/config"
	"subflow/pkg/logging"
)

// Application is the bootstrapped subflow runtime.
//
// Example usage:
//
//	application, err := app.NewApplication(ctx, app.NewConfig(false, ""))
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close(context.Background())
//	result, err := application.Services().Service.Call(ctx, invoke.Request{Target: "./greet"})
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, initializes logging and builds
// the runtime.
//
// If cfg.Subflow is already set it is used as is. Otherwise config.yaml is
// read from cfg.ConfigPath, or from ~/.config/subflow when that is empty.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.Subflow == nil {
		configPath := cfg.ConfigPath
		if configPath == "" {
			defaultPath, err := config.GetDefaultConfigPath()
			if err != nil {
				return nil, err
			}
			configPath = defaultPath
		}

		subflowCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load subflow configuration from path %s: %w", configPath, err)
		}
		cfg.Subflow = &subflowCfg
	}

	initLogging(cfg)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) {
	level := logging.ParseLevel(cfg.Subflow.Logging.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.Quiet {
		out = io.Discard
	}
	logging.Init(logging.Options{
		Level:  level,
		Format: cfg.Subflow.Logging.Format,
		Output: out,
	})
}

// Services returns the runtime components.
func (a *Application) Services() *Services {
	return a.services
}

// Config returns the configuration the application was built from.
func (a *Application) Config() *Config {
	return a.config
}

// Close shuts the runtime down. It waits for handles in use until ctx is
// done.
func (a *Application) Close(ctx context.Context) error {
	logging.Debug("Bootstrap", "Shutting down")
	return a.services.Close(ctx)
}
