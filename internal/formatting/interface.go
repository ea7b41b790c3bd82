// Package formatting renders invocation results, workflow contracts, cached
// handles and invocation history for the CLI.
//
// Every formatter writes to Options.Output. The table formatter is meant for
// people, the JSON and YAML formatters for scripts.
package formatting

import (
	"io"
	"os"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/invoke"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
	FormatTable OutputFormat = "table" // Rich table output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Output io.Writer
}

func (o Options) writer() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// Formatter renders the values the CLI prints.
type Formatter interface {
	FormatResult(result *api.InvocationResult) error
	FormatOutcomes(outcomes []invoke.Outcome) error
	FormatParameters(inputs, outputs []api.Parameter) error
	FormatHandles(handles []callee.HandleInfo) error
	FormatHistory(history []invoke.Invocation) error
}

// New creates the formatter for options.Format. Unknown formats fall back
// to tables.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewTableFormatter(options)
	}
}
