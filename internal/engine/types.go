package engine

import (
	"math"
	"reflect"

	"subflow/internal/api"
)

// matchesType performs basic type validation of a parameter value.
func matchesType(value interface{}, expected api.ParameterType) bool {
	if value == nil {
		return expected == api.TypeAny
	}

	switch expected {
	case api.TypeString:
		_, ok := value.(string)
		return ok
	case api.TypeNumber:
		switch reflect.ValueOf(value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case api.TypeInteger:
		v := reflect.ValueOf(value)
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		case reflect.Float32, reflect.Float64:
			// JSON numbers decode as float64
			f := v.Float()
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return false
	case api.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case api.TypeArray:
		kind := reflect.ValueOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case api.TypeObject:
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}
