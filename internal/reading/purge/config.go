package purge

import (
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/config"
)

// Config controls the expired-reading purge loop.
type Config struct {
	Enabled       bool
	BatchSize     int
	Interval      time.Duration
	RunTimeout    time.Duration
	MaxBatchesRun int
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BatchSize:     500,
		Interval:      10 * time.Minute,
		RunTimeout:    time.Minute,
		MaxBatchesRun: 20,
	}
}

func ConfigFromApp(cfg config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Purge.Enabled
	out.BatchSize = cfg.Purge.BatchSize
	out.Interval = time.Duration(cfg.Purge.IntervalSeconds) * time.Second
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.MaxBatchesRun <= 0 {
		c.MaxBatchesRun = defaults.MaxBatchesRun
	}
	return c
}
