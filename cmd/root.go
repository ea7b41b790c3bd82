package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/app"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeResolution indicates a workflow reference that could not be resolved.
	ExitCodeResolution = 2
	// ExitCodeLoad indicates a workflow that could not be loaded.
	ExitCodeLoad = 3
	// ExitCodeInvalidInput indicates parameters that do not match the workflow's inputs.
	ExitCodeInvalidInput = 4
	// ExitCodeExecution indicates a workflow that did not reach the EXECUTED state.
	ExitCodeExecution = 5
	// ExitCodeCanceled indicates an interrupted invocation.
	ExitCodeCanceled = 6
)

var (
	rootConfigPath string
	rootDebug      bool
	rootQuiet      bool
)

// rootCmd represents the base command for the subflow application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "subflow",
	Short: "Run workflows that call other workflows",
	Long: `subflow runs declarative workflows whose steps may call other workflows,
local or downloaded, as reusable subroutines.

Loaded workflows are cached and shared between calls. A cached workflow
serves one invocation at a time; concurrent calls wait their turn.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "subflow version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case api.IsResolutionError(err):
		return ExitCodeResolution
	case api.IsLoadError(err):
		return ExitCodeLoad
	case api.IsInvalidInputError(err):
		return ExitCodeInvalidInput
	case api.IsExecutionFailure(err):
		return ExitCodeExecution
	case api.IsConcurrencyError(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitCodeCanceled
	default:
		return ExitCodeError
	}
}

// newApplication bootstraps the runtime from the persistent flags. The
// caller must close it.
func newApplication(ctx context.Context) (*app.Application, error) {
	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.Quiet = rootQuiet
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start subflow: %w", err)
	}
	return application, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Directory holding config.yaml (default is $HOME/.config/subflow)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress log output")
}
