package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ForwardResultSuccess     = "success"
	ForwardResultFailure     = "failure"
	ForwardResultException   = "exception"
	ForwardResultBreakerOpen = "breaker_open"
	ForwardResultDisabled    = "disabled"
)

const (
	AttemptOutcomeSuccess = "success"
	AttemptOutcomeRetry   = "retry"
	AttemptOutcomeFailure = "failure"
)

const (
	StorageResultSuccess   = "success"
	StorageResultFailure   = "failure"
	StorageResultException = "exception"
)

const (
	RequestResultSuccess         = "success"
	RequestResultValidationError = "validation_error"
	RequestResultInternalError   = "internal_error"
)

const (
	StorageErrorReasonDeadlineExceeded     = "deadline_exceeded"
	StorageErrorReasonDBLockTimeout        = "db_lock_timeout"
	StorageErrorReasonSerializationFailure = "serialization_failure"
	StorageErrorReasonUniqueViolation      = "unique_violation"
	StorageErrorReasonDB                   = "db"
	StorageErrorReasonUnknown              = "unknown"
)

// ProxyMetrics tracks relay, breaker and storage health of the ingest path.
type ProxyMetrics struct {
	forwardAttempts  *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	forwardResults   *prometheus.CounterVec
	breakerState     prometheus.Gauge
	breakerOpen      prometheus.Counter
	storageReadings  *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec
	requests         *prometheus.CounterVec
	processingTime   prometheus.Histogram
	batchDeviceCount prometheus.Histogram
	purgedReadings   prometheus.Counter
}

var (
	proxyMetricsOnce sync.Once
	proxyMetrics     *ProxyMetrics
)

// Proxy returns the process-wide proxy metrics registered on the default registry.
func Proxy() *ProxyMetrics {
	return ProxyWithConfig(Config{})
}

// ProxyWithConfig returns the singleton proxy metrics using config labels.
func ProxyWithConfig(cfg Config) *ProxyMetrics {
	proxyMetricsOnce.Do(func() {
		proxyMetrics = NewProxyMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return proxyMetrics
}

// ResetProxyMetricsForTest resets the proxy metrics singleton for tests.
func ResetProxyMetricsForTest() {
	proxyMetricsOnce = sync.Once{}
	proxyMetrics = nil
}

// NewProxyMetrics builds and registers the collectors on registerer.
func NewProxyMetrics(registerer prometheus.Registerer, cfg Config) *ProxyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "ruuviproxy"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ProxyMetrics{
		forwardAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ruuviproxy_forwarding_attempts_total",
			Help:        "Upstream relay attempts by outcome and error code.",
			ConstLabels: constLabels,
		}, []string{"outcome", "error_code"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ruuviproxy_forwarding_attempt_duration_seconds",
			Help:        "Latency of a single upstream relay attempt.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 60},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		forwardResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ruuviproxy_forwarding_total",
			Help:        "Terminal relay results per batch.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ruuviproxy_circuit_breaker_state",
			Help:        "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		}),
		breakerOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ruuviproxy_circuit_breaker_open_total",
			Help:        "Relay calls short-circuited by an open breaker.",
			ConstLabels: constLabels,
		}),
		storageReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ruuviproxy_storage_readings_total",
			Help:        "Readings written to the local store by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ruuviproxy_storage_errors_total",
			Help:        "Local store write errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ruuviproxy_ingest_requests_total",
			Help:        "Ingest requests by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ruuviproxy_ingest_processing_seconds",
			Help:        "End-to-end ingest processing time.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		batchDeviceCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ruuviproxy_ingest_batch_devices",
			Help:        "Valid devices per ingested batch.",
			Buckets:     []float64{1, 2, 5, 10, 25, 50, 100},
			ConstLabels: constLabels,
		}),
		purgedReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ruuviproxy_purged_readings_total",
			Help:        "Expired readings removed by the purge worker.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.forwardAttempts,
		m.attemptDuration,
		m.forwardResults,
		m.breakerState,
		m.breakerOpen,
		m.storageReadings,
		m.storageErrors,
		m.requests,
		m.processingTime,
		m.batchDeviceCount,
		m.purgedReadings,
	)
	return m
}

// RecordForwardAttempt counts one relay attempt.
func (m *ProxyMetrics) RecordForwardAttempt(outcome, errorCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.forwardAttempts.WithLabelValues(outcome, errorCode).Inc()
	m.attemptDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *ProxyMetrics) RecordForwardResult(result string) {
	if m == nil {
		return
	}
	m.forwardResults.WithLabelValues(result).Inc()
}

func (m *ProxyMetrics) RecordBreakerOpen() {
	if m == nil {
		return
	}
	m.breakerOpen.Inc()
}

// SetBreakerState publishes the breaker state as a gauge value.
func (m *ProxyMetrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	switch state {
	case "OPEN":
		m.breakerState.Set(2)
	case "HALF_OPEN":
		m.breakerState.Set(1)
	default:
		m.breakerState.Set(0)
	}
}

func (m *ProxyMetrics) AddStorage(result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.storageReadings.WithLabelValues(result).Add(float64(count))
}

func (m *ProxyMetrics) IncStorageError(err error) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(ClassifyStorageError(err)).Inc()
}

func (m *ProxyMetrics) RecordRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *ProxyMetrics) ObserveProcessingTime(duration time.Duration) {
	if m == nil {
		return
	}
	m.processingTime.Observe(duration.Seconds())
}

func (m *ProxyMetrics) ObserveDeviceCount(count int) {
	if m == nil {
		return
	}
	m.batchDeviceCount.Observe(float64(count))
}

func (m *ProxyMetrics) AddPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purgedReadings.Add(float64(count))
}

// ClassifyStorageError maps a store error to a bounded label value.
func ClassifyStorageError(err error) string {
	if err == nil {
		return StorageErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StorageErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return StorageErrorReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StorageErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StorageErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return StorageErrorReasonDB
	}
	return StorageErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
