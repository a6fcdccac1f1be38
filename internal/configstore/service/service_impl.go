package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ruuviproxy/internal/cache"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCacheTTL = 300 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       configdomain.Repository
	Config     config.Config
	Defaults   *config.DefaultsHolder
	Clock      clock.Clock          `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       configdomain.Repository
	genID      *snowflake.Node
	defaults   *config.DefaultsHolder
	clock      clock.Clock
	cache      cache.Cache[string, any]
	ttl        time.Duration
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) configdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	ttl := time.Duration(p.Config.ConfigCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	defaults := p.Defaults
	if defaults == nil {
		defaults = config.NewStaticDefaultsHolder(nil)
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("configstore.service"),
		repo:       p.Repo,
		genID:      p.GenID,
		defaults:   defaults,
		clock:      clk,
		cache:      cache.NewTTLCacheWithClock[string, any](clk),
		ttl:        ttl,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, key string, def ...any) (any, bool) {
	if value, ok := s.cache.Get(key); ok {
		return value, true
	}

	entry, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		s.log.Error("config read failed", zap.String("key", key), zap.Error(err))
		return s.fallback(key, def)
	}
	if entry == nil {
		return s.fallback(key, def)
	}

	value := configdomain.DecodeValue(entry.ValueType, entry.Value)
	s.cache.Set(key, value, s.ttl)
	return value, true
}

func (s *Service) fallback(key string, def []any) (any, bool) {
	if len(def) > 0 && def[0] != nil {
		return def[0], true
	}
	if value, ok := s.defaults.Lookup(key); ok && value != nil {
		s.log.Debug("using system default", zap.String("key", key))
		return value, true
	}
	s.log.Warn("no configuration found and no default", zap.String("key", key))
	return nil, false
}

func (s *Service) GetBool(ctx context.Context, key string, def bool) bool {
	value, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	if b, ok := configdomain.AsBool(value); ok {
		return b
	}
	s.log.Warn("config value is not a boolean", zap.String("key", key))
	return def
}

func (s *Service) GetInt(ctx context.Context, key string, def int) int {
	value, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	if i, ok := configdomain.AsInt(value); ok {
		return int(i)
	}
	s.log.Warn("config value is not an integer", zap.String("key", key))
	return def
}

func (s *Service) GetFloat(ctx context.Context, key string, def float64) float64 {
	value, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	if f, ok := configdomain.AsFloat(value); ok {
		return f
	}
	s.log.Warn("config value is not a number", zap.String("key", key))
	return def
}

func (s *Service) GetString(ctx context.Context, key string, def string) string {
	value, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	if str, ok := configdomain.AsString(value); ok {
		return str
	}
	s.log.Warn("config value is not a string", zap.String("key", key))
	return def
}

func (s *Service) Set(ctx context.Context, key string, value any, updatedBy string) error {
	normalized, known, err := configdomain.Validate(key, value)
	if err != nil {
		s.log.Warn("invalid configuration value", zap.String("key", key), zap.Any("value", value), zap.Error(err))
		s.recordUpdate(ctx, key, "rejected")
		return err
	}
	if !known {
		s.log.Warn("no validator for configuration key, accepting value", zap.String("key", key))
	}

	valueType, literal, err := configdomain.EncodeValue(normalized)
	if err != nil {
		s.recordUpdate(ctx, key, "rejected")
		return err
	}

	now := s.clock.Now()
	entry := &configdomain.ConfigEntry{
		Key:         key,
		ValueType:   valueType,
		Value:       literal,
		LastUpdated: &now,
		UpdatedBy:   updatedBy,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := s.repo.FindByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := s.repo.Upsert(ctx, tx, entry); err != nil {
			return err
		}

		audit := &configdomain.ConfigAudit{
			ID:        s.genID.Generate(),
			Key:       key,
			NewValue:  literal,
			ValueType: valueType,
			UpdatedBy: updatedBy,
			CreatedAt: now,
		}
		if previous != nil {
			old := previous.Value
			audit.OldValue = &old
		}
		return s.repo.InsertAudit(ctx, tx, audit)
	})
	if err != nil {
		s.log.Error("config write failed", zap.String("key", key), zap.Error(err))
		s.recordUpdate(ctx, key, "error")
		return fmt.Errorf("%w: %v", configdomain.ErrStore, err)
	}

	s.cache.Set(key, normalized, s.ttl)
	s.recordUpdate(ctx, key, "success")
	s.log.Info("configuration updated",
		zap.String("key", key),
		zap.Any("value", normalized),
		zap.String("updated_by", updatedBy),
	)
	return nil
}

func (s *Service) GetAll(ctx context.Context) map[string]configdomain.EntryView {
	out := make(map[string]configdomain.EntryView)

	entries, err := s.repo.List(ctx, s.db)
	if err != nil {
		s.log.Error("config list failed, serving defaults", zap.Error(err))
		entries = nil
	}
	for _, entry := range entries {
		updatedBy := entry.UpdatedBy
		if updatedBy == "" {
			updatedBy = "unknown"
		}
		out[entry.Key] = configdomain.EntryView{
			Value:       configdomain.DecodeValue(entry.ValueType, entry.Value),
			LastUpdated: entry.LastUpdated,
			UpdatedBy:   updatedBy,
		}
	}

	for key, value := range s.defaults.Get() {
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = configdomain.EntryView{
			Value:     value,
			UpdatedBy: configdomain.UpdatedByDefault,
		}
	}
	return out
}

func (s *Service) ClearCache() {
	s.cache.Clear()
	s.log.Info("configuration cache cleared")
}

func (s *Service) recordUpdate(ctx context.Context, key, result string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordConfigUpdate(ctx, key, result)
}
