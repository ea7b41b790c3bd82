package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"subflow/internal/api"
	"subflow/internal/config"
	"subflow/internal/template"
)

// DefinitionFile is the name of the definition file inside a workflow
// directory.
const DefinitionFile = "workflow.yaml"

// ErrNoDefinition is returned when a directory has no workflow.yaml.
var ErrNoDefinition = errors.New("directory does not contain a " + DefinitionFile)

// Definition is the parsed content of a workflow.yaml file.
type Definition struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Inputs      map[string]InputDef  `yaml:"inputs,omitempty"`
	Outputs     map[string]OutputDef `yaml:"outputs,omitempty"`
	Steps       []Step               `yaml:"steps"`
}

// InputDef declares one input parameter.
type InputDef struct {
	Type        api.ParameterType `yaml:"type"`
	Required    bool              `yaml:"required,omitempty"`
	Default     interface{}       `yaml:"default,omitempty"`
	Description string            `yaml:"description,omitempty"`
}

// OutputDef declares one output parameter and the template producing it.
type OutputDef struct {
	Type        api.ParameterType `yaml:"type,omitempty"`
	Value       interface{}       `yaml:"value"`
	Description string            `yaml:"description,omitempty"`
}

// Step is one tool call of a workflow.
type Step struct {
	ID           string                 `yaml:"id"`
	Tool         string                 `yaml:"tool"`
	Args         map[string]interface{} `yaml:"args,omitempty"`
	AllowFailure bool                   `yaml:"allowFailure,omitempty"`
	Description  string                 `yaml:"description,omitempty"`
}

// InputParameters returns the declared inputs sorted by name.
func (d *Definition) InputParameters() []api.Parameter {
	params := make([]api.Parameter, 0, len(d.Inputs))
	for name, in := range d.Inputs {
		params = append(params, api.Parameter{
			Name:        name,
			Type:        in.Type,
			Required:    in.Required,
			Default:     in.Default,
			Description: in.Description,
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// OutputParameters returns the declared outputs sorted by name.
func (d *Definition) OutputParameters() []api.Parameter {
	params := make([]api.Parameter, 0, len(d.Outputs))
	for name, out := range d.Outputs {
		params = append(params, api.Parameter{
			Name:        name,
			Type:        outputType(out),
			Description: out.Description,
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

func outputType(out OutputDef) api.ParameterType {
	if out.Type == "" {
		return api.TypeAny
	}
	return out.Type
}

// ReadDefinition reads and parses the workflow.yaml inside dir. It does not
// validate the definition.
func ReadDefinition(dir string) (*Definition, error) {
	data, err := os.ReadFile(filepath.Join(dir, DefinitionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoDefinition)
		}
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a workflow definition. Unknown fields are
// rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	return &def, nil
}

// ToolChecker reports whether a tool name can be called.
type ToolChecker interface {
	HasTool(name string) bool
}

// ValidateDefinition checks a definition before it is instantiated. Tools
// are only checked when tools is non-nil.
func ValidateDefinition(def *Definition, tools ToolChecker) error {
	var errs config.ValidationErrors
	templates := template.New()

	errs.Check(config.ValidateEntityName(def.Name, "workflow"))

	if def.Description != "" {
		errs.Check(config.ValidateMaxLength("description", def.Description, 500))
	}

	for name, in := range def.Inputs {
		field := fmt.Sprintf("inputs.%s.type", name)
		if in.Type == "" {
			errs.Add(field, "input type is required")
			continue
		}
		if errs.Check(config.ValidateOneOf(field, string(in.Type), api.ParameterTypes)) {
			continue
		}
		if in.Default != nil && !matchesType(in.Default, in.Type) {
			errs.Add(fmt.Sprintf("inputs.%s.default", name), fmt.Sprintf("default does not match type %s", in.Type), in.Default)
		}
	}

	if len(def.Steps) == 0 {
		errs.Add("steps", "must have at least one step for workflow")
	}

	stepIDs := make(map[string]bool)
	for i, step := range def.Steps {
		if step.ID == "" {
			errs.Add(fmt.Sprintf("steps[%d].id", i), "step ID cannot be empty")
			continue
		}
		if stepIDs[step.ID] {
			errs.Add(fmt.Sprintf("steps[%d].id", i), fmt.Sprintf("duplicate step ID '%s'", step.ID))
		}

		if step.Tool == "" {
			errs.Add(fmt.Sprintf("steps[%d].tool", i), "tool name cannot be empty")
		} else if tools != nil && !tools.HasTool(step.Tool) {
			errs.Add(fmt.Sprintf("steps[%d].tool", i), fmt.Sprintf("unknown tool '%s'", step.Tool))
		}

		// Arguments may only use declared inputs and steps that ran before.
		for _, ref := range templates.References(toInterfaceMap(step.Args)) {
			if msg := checkReference(ref, def.Inputs, stepIDs); msg != "" {
				errs.Add(fmt.Sprintf("steps[%d].args", i), msg)
			}
		}

		stepIDs[step.ID] = true
	}

	for name, out := range def.Outputs {
		if out.Type != "" {
			errs.Check(config.ValidateOneOf(fmt.Sprintf("outputs.%s.type", name), string(out.Type), api.ParameterTypes))
		}
		if out.Value == nil {
			errs.Add(fmt.Sprintf("outputs.%s.value", name), "output value is required")
			continue
		}
		for _, ref := range templates.References(out.Value) {
			if msg := checkReference(ref, def.Inputs, stepIDs); msg != "" {
				errs.Add(fmt.Sprintf("outputs.%s.value", name), msg)
			}
		}
	}

	if errs.HasErrors() {
		return config.FormatValidationError("workflow", def.Name, errs)
	}
	return nil
}

func checkReference(ref string, inputs map[string]InputDef, steps map[string]bool) string {
	root, name, _ := strings.Cut(ref, ".")
	switch root {
	case "inputs":
		if name == "" {
			return ""
		}
		if _, ok := inputs[name]; !ok {
			return fmt.Sprintf("references undeclared input '%s'", name)
		}
	case "steps":
		if name == "" {
			return ""
		}
		if !steps[name] {
			return fmt.Sprintf("references step '%s' which does not run earlier", name)
		}
	default:
		return fmt.Sprintf("unknown template root '%s', expected inputs or steps", root)
	}
	return ""
}

func toInterfaceMap(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
