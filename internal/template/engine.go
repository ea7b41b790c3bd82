package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine resolves {{ ... }} expressions in workflow step arguments and
// output declarations.
//
// Strings that consist of a single path expression such as
// "{{ .inputs.count }}" resolve to the referenced value with its type
// preserved. Anything else is rendered as a Go template with the sprig
// function library and yields a string.
type Engine struct {
	funcs       template.FuncMap
	pathPattern *regexp.Regexp
	refPattern  *regexp.Regexp
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		funcs:       sprig.TxtFuncMap(),
		pathPattern: regexp.MustCompile(`^\{\{-?\s*((?:\.[a-zA-Z_][a-zA-Z0-9_-]*)+)\s*-?\}\}$`),
		refPattern:  regexp.MustCompile(`(?:^|[^\w.)\]"'$])((?:\.[a-zA-Z_][a-zA-Z0-9_-]*)+)`),
	}
}

// Replace resolves all template expressions in value against context.
// Maps and slices are walked recursively and returned as copies.
func (e *Engine) Replace(value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.replaceString(v, context)
	case map[string]interface{}:
		return e.replaceMapTemplates(v, context)
	case []interface{}:
		return e.replaceSliceTemplates(v, context)
	default:
		// Non-templatable types are returned as-is
		return value, nil
	}
}

// RenderGoTemplate renders templateStr as a Go template. Missing keys are
// errors rather than "<no value>".
func (e *Engine) RenderGoTemplate(templateStr string, context map[string]interface{}) (string, error) {
	tmpl, err := template.New("value").Funcs(e.funcs).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", templateStr, err)
	}
	return buf.String(), nil
}

func (e *Engine) replaceString(s string, context map[string]interface{}) (interface{}, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	if match := e.pathPattern.FindStringSubmatch(strings.TrimSpace(s)); match != nil {
		value, err := lookupPath(context, strings.Split(strings.TrimPrefix(match[1], "."), "."))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", s, err)
		}
		return value, nil
	}

	return e.RenderGoTemplate(s, context)
}

// replaceMapTemplates recursively replaces templates in a map
func (e *Engine) replaceMapTemplates(m map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(m))

	for key, value := range m {
		replacedValue, err := e.Replace(value, context)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", key, err)
		}
		result[key] = replacedValue
	}

	return result, nil
}

// replaceSliceTemplates recursively replaces templates in a slice
func (e *Engine) replaceSliceTemplates(s []interface{}, context map[string]interface{}) ([]interface{}, error) {
	result := make([]interface{}, len(s))

	for i, value := range s {
		replacedValue, err := e.Replace(value, context)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		result[i] = replacedValue
	}

	return result, nil
}

// References returns the first two path segments of every field reference
// in value, e.g. "steps.greet" for "{{ .steps.greet.message | upper }}".
// It is used to validate definitions before they run.
func (e *Engine) References(value interface{}) []string {
	refs := make(map[string]bool)
	e.collectReferences(value, refs)

	result := make([]string, 0, len(refs))
	for ref := range refs {
		result = append(result, ref)
	}
	return result
}

func (e *Engine) collectReferences(value interface{}, refs map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, action := range actions(v) {
			// Each match is a whole field chain; only root and name count.
			for _, m := range e.refPattern.FindAllStringSubmatch(action, -1) {
				segments := strings.Split(strings.TrimPrefix(m[1], "."), ".")
				if len(segments) > 2 {
					segments = segments[:2]
				}
				refs[strings.Join(segments, ".")] = true
			}
		}
	case map[string]interface{}:
		for _, val := range v {
			e.collectReferences(val, refs)
		}
	case []interface{}:
		for _, val := range v {
			e.collectReferences(val, refs)
		}
	}
}

// actions returns the text between each {{ and }} pair.
func actions(s string) []string {
	var out []string
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return out
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return out
		}
		out = append(out, s[start+2:start+end])
		s = s[start+end+2:]
	}
}

func lookupPath(context map[string]interface{}, path []string) (interface{}, error) {
	var current interface{} = context
	for i, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("'%s' is not an object", strings.Join(path[:i], "."))
		}
		next, exists := m[segment]
		if !exists {
			return nil, fmt.Errorf("missing template variable '%s'", strings.Join(path[:i+1], "."))
		}
		current = next
	}
	return current, nil
}
