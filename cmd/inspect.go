package cmd

import (
	"github.com/spf13/cobra"

	"subflow/internal/formatting"
)

var inspectOutputFormat string

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <workflow>",
	Short: "Show the inputs and outputs of a workflow",
	Long: `Load a workflow and print its declared inputs and outputs.

Examples:
  subflow inspect ./greet
  subflow inspect https://example.com/workflows/report.zip -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer closeApplication(application)

	backend, err := application.Services().Service.Open(ctx, args[0], "")
	if err != nil {
		return err
	}
	defer backend.Close()

	formatter := formatting.New(formatting.Options{
		Format: formatting.OutputFormat(inspectOutputFormat),
		Output: cmd.OutOrStdout(),
	})
	return formatter.FormatParameters(backend.Inputs(), backend.OutputParameters())
}
