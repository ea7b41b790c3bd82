package formatting

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"subflow/internal/api"
	"subflow/internal/callee"
	"subflow/internal/invoke"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) *YAMLFormatter {
	return &YAMLFormatter{options: options}
}

// encode goes through JSON first so the YAML keys follow the json tags.
func (f *YAMLFormatter) encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(f.options.writer())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// FormatResult writes result as YAML.
func (f *YAMLFormatter) FormatResult(result *api.InvocationResult) error {
	return f.encode(result)
}

// FormatOutcomes writes the outcomes of a batch as a YAML list.
func (f *YAMLFormatter) FormatOutcomes(outcomes []invoke.Outcome) error {
	return f.encode(outcomeDocuments(outcomes))
}

// FormatParameters writes the input and output contract.
func (f *YAMLFormatter) FormatParameters(inputs, outputs []api.Parameter) error {
	return f.encode(contractDocument{Inputs: inputs, Outputs: outputs})
}

// FormatHandles writes the cached handles.
func (f *YAMLFormatter) FormatHandles(handles []callee.HandleInfo) error {
	return f.encode(handles)
}

// FormatHistory writes the invocation history.
func (f *YAMLFormatter) FormatHistory(history []invoke.Invocation) error {
	return f.encode(history)
}
