package observability

import (
	"strings"

	"github.com/smallbiznis/ruuviproxy/internal/config"
)

// Config is the resolved observability view of the process config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	GormSlowThresholdMillis int
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "ruuviproxy"
	}
	ratio := obs.OtelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	format := obs.LogFormat
	if format != "console" {
		format = "json"
	}

	return Config{
		ServiceName:             serviceName,
		Environment:             strings.TrimSpace(cfg.Environment),
		Version:                 strings.TrimSpace(cfg.AppVersion),
		LogLevel:                obs.LogLevel,
		LogFormat:               format,
		OtelEnabled:             obs.OtelEnabled,
		OtelExporterEndpoint:    obs.OtelEndpoint,
		OtelExporterProtocol:    obs.OtelProtocol,
		OtelSamplingRatio:       ratio,
		GormSlowThresholdMillis: obs.GormSlowThresholdMillis,
	}
}

// Debug is on for LOG_LEVEL=debug and for any non-production environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
