package cmd

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// buildInputs merges the parameters file with key=value pairs. Pairs win
// over the file. Values are parsed as YAML scalars so that count=3 is an
// integer and enabled=true a boolean; quote a value to keep it a string.
func buildInputs(pairs []string, paramsFile string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	if paramsFile != "" {
		data, err := os.ReadFile(paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters file: %w", err)
		}
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file %s: %w", paramsFile, err)
		}
		if inputs == nil {
			inputs = make(map[string]interface{})
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		inputs[key] = parseValue(raw)
	}
	return inputs, nil
}

func parseValue(raw string) interface{} {
	if raw == "" {
		return ""
	}
	var v interface{}
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}
