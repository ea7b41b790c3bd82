package template

// MergeContexts returns a new map holding the keys of every layer. A key
// present in several layers takes the value of the last one; nil layers
// are skipped and the inputs are never modified.
func MergeContexts(layers ...map[string]interface{}) map[string]interface{} {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}

	merged := make(map[string]interface{}, size)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}
