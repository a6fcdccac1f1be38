package domain

import (
	"fmt"
	"sort"
	"strings"
)

const (
	KeyForwardingEnabled  = "forwarding_enabled"
	KeyDataRetentionDays  = "data_retention_days"
	KeyRuuviCloudEndpoint = "ruuvi_cloud_endpoint"
	KeyRuuviCloudTimeout  = "ruuvi_cloud_timeout"
	KeyMaxBatchSize       = "max_batch_size"
	KeyCacheTTLSeconds    = "cache_ttl_seconds"
)

// Validator checks a proposed value and returns it in canonical form.
type Validator func(value any) (any, error)

var validators = map[string]Validator{
	KeyForwardingEnabled: func(v any) (any, error) {
		b, ok := AsBool(v)
		if !ok {
			return nil, fmt.Errorf("%w: expected boolean", ErrInvalidValue)
		}
		return b, nil
	},
	KeyDataRetentionDays: intRange(1, 3650),
	KeyRuuviCloudEndpoint: func(v any) (any, error) {
		s, ok := AsString(v)
		if !ok || !(strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")) {
			return nil, fmt.Errorf("%w: expected http(s) URL", ErrInvalidValue)
		}
		return s, nil
	},
	KeyRuuviCloudTimeout: func(v any) (any, error) {
		if _, isBool := v.(bool); isBool {
			return nil, fmt.Errorf("%w: expected number", ErrInvalidValue)
		}
		if i, ok := AsInt(v); ok {
			if i < 1 || i > 300 {
				return nil, fmt.Errorf("%w: must be between 1 and 300", ErrInvalidValue)
			}
			return i, nil
		}
		f, ok := AsFloat(v)
		if !ok || f < 1 || f > 300 {
			return nil, fmt.Errorf("%w: must be between 1 and 300", ErrInvalidValue)
		}
		return f, nil
	},
	KeyMaxBatchSize:    intRange(1, 100),
	KeyCacheTTLSeconds: intRange(1, 3600),
}

func intRange(min, max int64) Validator {
	return func(v any) (any, error) {
		i, ok := AsInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: expected integer", ErrInvalidValue)
		}
		if i < min || i > max {
			return nil, fmt.Errorf("%w: must be between %d and %d", ErrInvalidValue, min, max)
		}
		return i, nil
	}
}

// Validate runs the key's validator. known is false when the key has no
// validator, in which case the value is accepted as given.
func Validate(key string, value any) (normalized any, known bool, err error) {
	validator, ok := validators[key]
	if !ok {
		if value == nil {
			return nil, false, fmt.Errorf("%w: nil value", ErrInvalidValue)
		}
		return value, false, nil
	}
	normalized, err = validator(value)
	return normalized, true, err
}

var updatableKeys = map[string]struct{}{
	KeyForwardingEnabled:  {},
	KeyDataRetentionDays:  {},
	KeyRuuviCloudEndpoint: {},
	KeyRuuviCloudTimeout:  {},
	KeyMaxBatchSize:       {},
	KeyCacheTTLSeconds:    {},
}

// IsUpdatable reports whether the admin API may write key.
func IsUpdatable(key string) bool {
	_, ok := updatableKeys[key]
	return ok
}

// UpdatableKeys returns the admin-writable keys in sorted order.
func UpdatableKeys() []string {
	keys := make([]string, 0, len(updatableKeys))
	for k := range updatableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
