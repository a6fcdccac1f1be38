package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultValues returns the built-in system defaults for dynamic configuration keys.
func DefaultValues() map[string]any {
	return map[string]any{
		"forwarding_enabled":   true,
		"data_retention_days":  90,
		"ruuvi_cloud_endpoint": "https://network.ruuvi.com/record",
		"ruuvi_cloud_timeout":  25,
		"max_batch_size":       25,
		"cache_ttl_seconds":    300,
	}
}

type DefaultsHolder struct {
	current atomic.Value // holds map[string]any
}

// NewDefaultsHolder loads system defaults, optionally overridden by a proxy.yml file.
// The file is watched and reloaded when it changes.
func NewDefaultsHolder() (*DefaultsHolder, error) {
	v := viper.New()

	v.SetConfigName("proxy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/ruuviproxy")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RUUVIPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &DefaultsHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultValues())
		return holder, nil
	}

	merged, err := mergeDefaults(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(merged)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := mergeDefaults(v)
		if err != nil {
			log.Printf("[proxy-defaults] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[proxy-defaults] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticDefaultsHolder returns a holder that never reloads.
func NewStaticDefaultsHolder(values map[string]any) *DefaultsHolder {
	holder := &DefaultsHolder{}
	merged := DefaultValues()
	for k, val := range values {
		merged[k] = val
	}
	holder.current.Store(merged)
	return holder
}

// Get returns a copy of the current defaults.
func (h *DefaultsHolder) Get() map[string]any {
	src := h.current.Load().(map[string]any)
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Lookup returns the default for a single key.
func (h *DefaultsHolder) Lookup(key string) (any, bool) {
	src := h.current.Load().(map[string]any)
	v, ok := src[key]
	return v, ok
}

func mergeDefaults(v *viper.Viper) (map[string]any, error) {
	overrides := v.GetStringMap("defaults")
	merged := DefaultValues()
	for k, val := range overrides {
		if val == nil {
			return nil, errors.New("defaults." + k + " cannot be null")
		}
		merged[k] = val
	}
	return merged, nil
}
