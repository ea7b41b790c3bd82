package formatting

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"subflow/internal/api"
	"subflow/internal/invoke"
)

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt's %v formatting when v cannot be marshaled.
//
// Example:
//
//	data := map[string]interface{}{"name": "test", "value": 42}
//	fmt.Println(formatting.PrettyJSON(data))
//	// Output:
//	// {
//	//   "name": "test",
//	//   "value": 42
//	// }
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

type contractDocument struct {
	Inputs  []api.Parameter `json:"inputs"`
	Outputs []api.Parameter `json:"outputs"`
}

type outcomeDocument struct {
	Target string                `json:"target"`
	Result *api.InvocationResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func outcomeDocuments(outcomes []invoke.Outcome) []outcomeDocument {
	docs := make([]outcomeDocument, 0, len(outcomes))
	for _, o := range outcomes {
		doc := outcomeDocument{Target: o.Request.Target, Result: o.Result}
		if o.Err != nil {
			doc.Error = o.Err.Error()
		}
		docs = append(docs, doc)
	}
	return docs
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate collapses whitespace into single spaces, so that the result
// fits on one table line, and shortens it to limit runes.
func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// cellValue renders a parameter or output value for a table cell.
func cellValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
