package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType tags the encoding of a stored configuration literal.
type ValueType string

const (
	ValueTypeBool   ValueType = "bool"
	ValueTypeInt    ValueType = "int"
	ValueTypeFloat  ValueType = "float"
	ValueTypeString ValueType = "string"
	ValueTypeJSON   ValueType = "json"
)

// EncodeValue converts a validated value into its tag and text literal.
func EncodeValue(v any) (ValueType, string, error) {
	switch val := v.(type) {
	case bool:
		return ValueTypeBool, strconv.FormatBool(val), nil
	case int:
		return ValueTypeInt, strconv.FormatInt(int64(val), 10), nil
	case int32:
		return ValueTypeInt, strconv.FormatInt(int64(val), 10), nil
	case int64:
		return ValueTypeInt, strconv.FormatInt(val, 10), nil
	case float32:
		return ValueTypeFloat, strconv.FormatFloat(float64(val), 'f', -1, 64), nil
	case float64:
		return ValueTypeFloat, strconv.FormatFloat(val, 'f', -1, 64), nil
	case string:
		return ValueTypeString, val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return ValueTypeInt, strconv.FormatInt(i, 10), nil
		}
		return ValueTypeFloat, val.String(), nil
	case nil:
		return "", "", fmt.Errorf("%w: nil value", ErrInvalidValue)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return ValueTypeJSON, string(raw), nil
	}
}

// DecodeValue turns a stored literal back into a typed value.
// Untagged literals fall back to InferValue.
func DecodeValue(t ValueType, raw string) any {
	switch t {
	case ValueTypeBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case ValueTypeInt:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
	case ValueTypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case ValueTypeString:
		return raw
	case ValueTypeJSON:
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}
	return InferValue(raw)
}

// InferValue decodes a literal written without a type tag.
// Order: JSON, bool, integer (no '.'), float, raw string.
func InferValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err == nil && !dec.More() {
			return normalizeJSON(out)
		}
	}

	lower := strings.ToLower(trimmed)
	if lower == "true" || lower == "false" {
		return lower == "true"
	}
	if !strings.Contains(trimmed, ".") {
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i
		}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return raw
}

func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return val
	}
}

// AsBool coerces a decoded value to bool.
func AsBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	default:
		return false, false
	}
}

// AsInt coerces a decoded numeric value to int; fractional floats are rejected.
func AsInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, false
		}
		return int64(val), true
	case float32:
		return AsInt(float64(val))
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func AsFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
