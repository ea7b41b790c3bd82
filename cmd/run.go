package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/app"
	"subflow/internal/formatting"
	"subflow/internal/invoke"
	"subflow/internal/location"
)

// shutdownTimeout bounds how long the CLI waits for runs in progress on exit.
const shutdownTimeout = 30 * time.Second

var (
	runParams       []string
	runParamsFile   string
	runCaller       string
	runRepeat       int
	runParallel     bool
	runEphemeral    bool
	runStats        bool
	runOutputFormat string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow",
	Long: `Run a workflow and print its outputs.

The workflow is a directory containing workflow.yaml, a file:// URI, or an
http(s) URL of a zip archive. Relative paths resolve against the current
directory, or against --caller when it is set.

Examples:
  subflow run ./greet -p name=world
  subflow run https://example.com/workflows/report.zip --params-file params.yaml
  subflow run ./slow --repeat 5 --parallel --stats`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "Input parameter as key=value (repeatable)")
	runCmd.Flags().StringVar(&runParamsFile, "params-file", "", "YAML file with input parameters")
	runCmd.Flags().StringVar(&runCaller, "caller", "", "Directory of the calling workflow, used to resolve workflow:// references")
	runCmd.Flags().IntVar(&runRepeat, "repeat", 1, "Number of invocations")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Issue repeated invocations concurrently")
	runCmd.Flags().BoolVar(&runEphemeral, "ephemeral", false, "Run a private instance that bypasses the cache")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "Print cached workflows and invocation history afterwards")
	runCmd.Flags().StringVarP(&runOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	if runEphemeral && runRepeat > 1 {
		return fmt.Errorf("--ephemeral cannot be combined with --repeat")
	}

	inputs, err := buildInputs(runParams, runParamsFile)
	if err != nil {
		return err
	}

	caller := runCaller
	if caller != "" {
		if caller, err = filepath.Abs(caller); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer closeApplication(application)

	formatter := formatting.New(formatting.Options{
		Format: formatting.OutputFormat(runOutputFormat),
		Output: cmd.OutOrStdout(),
	})
	services := application.Services()
	req := invoke.Request{Caller: caller, Target: args[0], Inputs: inputs}

	switch {
	case runEphemeral:
		err = runEphemeralOnce(ctx, services, req, formatter)
	case runRepeat == 1:
		var result *api.InvocationResult
		result, err = services.Service.Call(ctx, req)
		if result != nil {
			if ferr := formatter.FormatResult(result); ferr != nil {
				return ferr
			}
		}
	default:
		err = runRepeated(ctx, services.Service, req, formatter)
	}

	if runStats {
		if ferr := formatter.FormatHandles(services.Service.Handles()); ferr != nil {
			return ferr
		}
		if ferr := formatter.FormatHistory(services.Service.History()); ferr != nil {
			return ferr
		}
	}
	return err
}

func runEphemeralOnce(ctx context.Context, services *app.Services, req invoke.Request, formatter formatting.Formatter) error {
	loc, err := services.Resolver.Resolve(req.Target, req.Caller)
	if err != nil {
		return err
	}
	if loc.Kind != location.KindLocal {
		return fmt.Errorf("--ephemeral only supports local workflows, got %s", loc)
	}

	backend, err := invoke.OpenEphemeral(ctx, services.Engine, loc.Path)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.SetInputs(req.Inputs); err != nil {
		return err
	}
	result, err := backend.Execute(ctx)
	if err != nil {
		return err
	}
	if err := formatter.FormatResult(result); err != nil {
		return err
	}
	return result.Err()
}

// runRepeated issues runRepeat copies of req and returns the first error.
func runRepeated(ctx context.Context, service *invoke.Service, req invoke.Request, formatter formatting.Formatter) error {
	reqs := make([]invoke.Request, runRepeat)
	for i := range reqs {
		reqs[i] = req
	}

	var outcomes []invoke.Outcome
	if runParallel {
		outcomes = service.Batch(ctx, reqs)
	} else {
		outcomes = make([]invoke.Outcome, 0, len(reqs))
		for _, r := range reqs {
			result, err := service.Call(ctx, r)
			outcomes = append(outcomes, invoke.Outcome{Request: r, Result: result, Err: err})
		}
	}

	if err := formatter.FormatOutcomes(outcomes); err != nil {
		return err
	}

	// The first error decides the exit code.
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

func closeApplication(application *app.Application) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Warning: shutdown incomplete: %v\n", err)
	}
}
