package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Observability ObservabilityConfig
	Cloud         CloudConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth       AuthConfig
	Resilience ResilienceConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Purge      PurgeConfig
	MQTT       MQTTConfig

	// ConfigCacheTTLSeconds bounds how long a configuration value is served from memory.
	ConfigCacheTTLSeconds int
}

// ObservabilityConfig carries the logging and OpenTelemetry knobs. Standard
// OTEL_* variables take precedence over the proxy's own names.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64

	GormSlowThresholdMillis int
}

type CloudConfig struct {
	Metrics CloudMetricsConfig
}

type CloudMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalSeconds int
}

type AuthConfig struct {
	IngestAPIKey    string
	RetrievalAPIKey string
	AdminAPIKey     string
}

type ResilienceConfig struct {
	FailureThreshold int
	RecoverySeconds  int
	MaxRetries       int
	BaseDelayMillis  int
	Backend          string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type PurgeConfig struct {
	Enabled         bool
	IntervalSeconds int
	BatchSize       int
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      int
}

func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.Broker) != ""
}

const (
	BreakerBackendMemory = "memory"
	BreakerBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "ruuviproxy"),
		AppVersion:  getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment: getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Observability: ObservabilityConfig{
			LogLevel:                strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:               strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:             getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:            strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OtelProtocol:            otlpProtocol(),
			OtelSamplingRatio:       getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			GormSlowThresholdMillis: getenvInt("GORM_SLOW_THRESHOLD_MS", 200),
		},
		Cloud: CloudConfig{
			Metrics: CloudMetricsConfig{
				Enabled:         getenvBool("CLOUD_METRICS_ENABLED", false),
				Exporter:        strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
				Endpoint:        strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
				AuthToken:       strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
				IntervalSeconds: getenvInt("CLOUD_METRICS_INTERVAL_SECONDS", 60),
			},
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ruuvi"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "ruuviproxy.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Auth: AuthConfig{
			IngestAPIKey:    strings.TrimSpace(getenv("INGEST_API_KEY", "")),
			RetrievalAPIKey: strings.TrimSpace(getenv("RETRIEVAL_API_KEY", "")),
			AdminAPIKey:     strings.TrimSpace(getenv("ADMIN_API_KEY", "")),
		},
		Resilience: ResilienceConfig{
			FailureThreshold: getenvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
			RecoverySeconds:  getenvInt("CIRCUIT_BREAKER_RECOVERY_SECONDS", 60),
			MaxRetries:       getenvInt("RETRY_MAX", 3),
			BaseDelayMillis:  getenvInt("RETRY_BASE_DELAY_MS", 1000),
			Backend:          normalizeBreakerBackend(getenv("CIRCUIT_BREAKER_BACKEND", BreakerBackendMemory)),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 1),
			Burst:   getenvInt("RATE_LIMIT_BURST", 10),
		},
		Purge: PurgeConfig{
			Enabled:         getenvBool("PURGE_ENABLED", true),
			IntervalSeconds: getenvInt("PURGE_INTERVAL_SECONDS", 600),
			BatchSize:       getenvInt("PURGE_BATCH_SIZE", 500),
		},
		MQTT: MQTTConfig{
			Broker:   strings.TrimSpace(getenv("MQTT_BROKER", "")),
			ClientID: getenv("MQTT_CLIENT_ID", "ruuviproxy"),
			Topic:    getenv("MQTT_TOPIC", "ruuvi/+/batch"),
			Username: getenv("MQTT_USERNAME", ""),
			Password: getenv("MQTT_PASSWORD", ""),
			QoS:      getenvInt("MQTT_QOS", 1),
		},
		ConfigCacheTTLSeconds: getenvInt("CONFIG_CACHE_TTL_SECONDS", 300),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// otlpProtocol prefers the traces-specific variable, as the OTel SDKs do.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func normalizeBreakerBackend(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case BreakerBackendRedis:
		return BreakerBackendRedis
	default:
		return BreakerBackendMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
