package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/engine"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <dir>...",
	Short: "Validate workflow definitions",
	Long: `Check workflow definitions without running them: names, input types,
step tools and template references.

Examples:
  subflow validate ./greet ./report`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	application, err := newApplication(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApplication(application)

	tools := application.Services().Tools
	out := cmd.OutOrStdout()

	var firstErr error
	for _, dir := range args {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}

		err = validateDir(abs, tools)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", text.FgRed.Sprint("✗"), dir, err)
			if firstErr == nil {
				firstErr = api.NewLoadError(abs, err)
			}
			continue
		}
		fmt.Fprintf(out, "%s %s\n", text.FgGreen.Sprint("✓"), dir)
	}
	return firstErr
}

func validateDir(dir string, tools engine.ToolChecker) error {
	def, err := engine.ReadDefinition(dir)
	if err != nil {
		return err
	}
	return engine.ValidateDefinition(def, tools)
}
