// Package configtest provides an in-memory configuration service for tests.
package configtest

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/config"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
)

type Static struct {
	mu      sync.Mutex
	values  map[string]any
	updated map[string]time.Time
	by      map[string]string
	// Panic makes every read panic, for exercising recovery paths.
	Panic bool
	// FailSet makes Set report a store failure.
	FailSet bool
}

// New returns a service seeded with the system defaults overlaid by values.
func New(values map[string]any) *Static {
	merged := config.DefaultValues()
	for k, v := range values {
		merged[k] = v
	}
	return &Static{
		values:  merged,
		updated: map[string]time.Time{},
		by:      map[string]string{},
	}
}

func (s *Static) Get(_ context.Context, key string, def ...any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Panic {
		panic("configtest: read failure")
	}
	if v, ok := s.values[key]; ok {
		return v, true
	}
	if len(def) > 0 && def[0] != nil {
		return def[0], true
	}
	return nil, false
}

func (s *Static) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := s.Get(ctx, key)
	if b, isBool := configdomain.AsBool(v); ok && isBool {
		return b
	}
	return def
}

func (s *Static) GetInt(ctx context.Context, key string, def int) int {
	v, ok := s.Get(ctx, key)
	if i, isInt := configdomain.AsInt(v); ok && isInt {
		return int(i)
	}
	return def
}

func (s *Static) GetFloat(ctx context.Context, key string, def float64) float64 {
	v, ok := s.Get(ctx, key)
	if f, isFloat := configdomain.AsFloat(v); ok && isFloat {
		return f
	}
	return def
}

func (s *Static) GetString(ctx context.Context, key string, def string) string {
	v, ok := s.Get(ctx, key)
	if str, isString := configdomain.AsString(v); ok && isString {
		return str
	}
	return def
}

func (s *Static) Set(_ context.Context, key string, value any, updatedBy string) error {
	normalized, _, err := configdomain.Validate(key, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSet {
		return configdomain.ErrStore
	}
	s.values[key] = normalized
	s.updated[key] = time.Now().UTC()
	s.by[key] = updatedBy
	return nil
}

func (s *Static) GetAll(context.Context) map[string]configdomain.EntryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]configdomain.EntryView, len(s.values))
	for k, v := range s.values {
		view := configdomain.EntryView{Value: v, UpdatedBy: configdomain.UpdatedByDefault}
		if at, ok := s.updated[k]; ok {
			at := at
			view.LastUpdated = &at
			view.UpdatedBy = s.by[k]
		}
		out[k] = view
	}
	return out
}

func (s *Static) ClearCache() {}

// UpdatedBy returns who last wrote key through Set.
func (s *Static) UpdatedBy(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.by[key]
}

var _ configdomain.Service = (*Static)(nil)
