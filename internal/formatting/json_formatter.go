package formatting

import (
	"encoding/json"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/invoke"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) *JSONFormatter {
	return &JSONFormatter{options: options}
}

func (f *JSONFormatter) encode(v interface{}) error {
	enc := json.NewEncoder(f.options.writer())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatResult writes result as a JSON object.
func (f *JSONFormatter) FormatResult(result *api.InvocationResult) error {
	return f.encode(result)
}

// FormatOutcomes writes one JSON object per outcome in a list.
func (f *JSONFormatter) FormatOutcomes(outcomes []invoke.Outcome) error {
	return f.encode(outcomeDocuments(outcomes))
}

// FormatParameters writes the input and output contract.
func (f *JSONFormatter) FormatParameters(inputs, outputs []api.Parameter) error {
	return f.encode(contractDocument{Inputs: inputs, Outputs: outputs})
}

// FormatHandles writes the cached handles.
func (f *JSONFormatter) FormatHandles(handles []callee.HandleInfo) error {
	if handles == nil {
		handles = []callee.HandleInfo{}
	}
	return f.encode(handles)
}

// FormatHistory writes the invocation history.
func (f *JSONFormatter) FormatHistory(history []invoke.Invocation) error {
	if history == nil {
		history = []invoke.Invocation{}
	}
	return f.encode(history)
}
