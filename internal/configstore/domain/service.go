package domain

import (
	"context"
	"errors"
)

// Service is the cached, validated configuration store.
type Service interface {
	// Get returns the value for key. Fallback order on a miss or read fault is
	// the caller default, then the system default; ok is false when neither exists.
	Get(ctx context.Context, key string, def ...any) (value any, ok bool)
	// Typed getters return def only when neither a stored value nor a system
	// default exists, or when the value has the wrong type.
	GetBool(ctx context.Context, key string, def bool) bool
	GetInt(ctx context.Context, key string, def int) int
	GetFloat(ctx context.Context, key string, def float64) float64
	GetString(ctx context.Context, key string, def string) string
	// Set validates and persists value. A nil error means the write succeeded.
	Set(ctx context.Context, key string, value any, updatedBy string) error
	GetAll(ctx context.Context) map[string]EntryView
	ClearCache()
}

var (
	ErrInvalidValue = errors.New("invalid_config_value")
	ErrStore        = errors.New("config_store_unavailable")
)
