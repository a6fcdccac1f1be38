package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
	"github.com/smallbiznis/ruuviproxy/internal/ingest/validator"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultEndpoint      = "https://network.ruuvi.com/record"
	defaultTimeoutSecs   = 25.0
	defaultMaxBatchSize  = 25
	defaultRetentionDays = 90
)

// Forwarder relays a batch through the breaker and retry policy.
type Forwarder interface {
	Forward(ctx context.Context, req upstream.Request) resilience.Outcome
}

type Params struct {
	fx.In

	Log          *zap.Logger
	Config       configdomain.Service
	Forwarder    Forwarder
	Store        readingdomain.Store
	Clock        clock.Clock               `optional:"true"`
	ProxyMetrics *obsmetrics.ProxyMetrics `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	config     configdomain.Service
	forwarder  Forwarder
	store      readingdomain.Store
	validator  *validator.Validator
	clock      clock.Clock
	metrics    *obsmetrics.ProxyMetrics
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) ingestdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		log:        p.Log.Named("ingest.service"),
		config:     p.Config,
		forwarder:  p.Forwarder,
		store:      p.Store,
		validator:  validator.New(clk),
		clock:      clk,
		metrics:    p.ProxyMetrics,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest validates a gateway batch, relays it upstream when forwarding is
// enabled and stores every valid reading locally regardless of the relay
// outcome.
func (s *Service) Ingest(ctx context.Context, body []byte) (*ingestdomain.IngestResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, s.log)
	defer func() {
		s.metrics.ObserveProcessingTime(time.Since(start))
	}()

	res := s.validator.Validate(body)
	for _, warning := range res.Warnings {
		log.Warn("dropping invalid tag", zap.String("reason", warning))
	}
	if !res.Valid() {
		log.Warn("rejected gateway batch", zap.Strings("errors", res.Errors))
		s.metrics.RecordRequest(obsmetrics.RequestResultValidationError)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordValidationError(ctx, "ingest")
		}
		return nil, &ingestdomain.ValidationError{Messages: res.Errors}
	}

	batch := res.Batch
	log = log.With(zap.String("gateway_id", batch.GatewayMAC), zap.Int("tags", len(batch.Tags)))
	s.metrics.ObserveDeviceCount(len(batch.Tags))
	// max_batch_size is advisory: oversized batches are logged, never refused
	if maxBatch := s.config.GetInt(ctx, configdomain.KeyMaxBatchSize, defaultMaxBatchSize); maxBatch > 0 && len(batch.Tags) > maxBatch {
		log.Warn("batch exceeds max_batch_size", zap.Int("max_batch_size", maxBatch))
	}

	result := &ingestdomain.IngestResult{DeviceCount: len(batch.Tags)}
	outcome := s.relay(ctx, log, batch, result)

	var vendorResponse datatypes.JSON
	if outcome.Attempted && outcome.Success {
		raw, err := json.Marshal(outcome.Response.Body)
		if err != nil {
			log.Warn("failed to encode upstream response", zap.Error(err))
		} else {
			vendorResponse = datatypes.JSON(raw)
		}
	}

	serverTS := s.clock.Now().Unix()
	readings := make([]readingdomain.Reading, 0, len(batch.Tags))
	for _, tag := range batch.Tags {
		readings = append(readings, readingdomain.Reading{
			DeviceID:        tag.DeviceID,
			Timestamp:       tag.Timestamp,
			GatewayID:       batch.GatewayMAC,
			ServerTimestamp: serverTS,
			Measurements: datatypes.NewJSONType(readingdomain.Measurements{
				RSSI:             tag.RSSI,
				Data:             tag.Data,
				GatewayTimestamp: batch.Timestamp,
				Coordinates:      batch.Coordinates,
			}),
			VendorResponse: vendorResponse,
		})
	}

	// the local write outlives the caller: a gateway that hung up during a
	// slow relay still gets its readings stored
	storeCtx := context.WithoutCancel(ctx)
	ttlDays := s.config.GetInt(storeCtx, configdomain.KeyDataRetentionDays, defaultRetentionDays)
	stored, failed := s.store.StoreBatch(storeCtx, readings, ttlDays)
	result.Stored = stored
	result.Failed = failed

	if stored == 0 && failed > 0 {
		log.Error("local store rejected the whole batch", zap.Int("failed", failed))
		s.metrics.RecordRequest(obsmetrics.RequestResultInternalError)
		s.recordBatch(ctx, "storage_error")
		return nil, fmt.Errorf("%w: %d readings failed to store", ingestdomain.ErrStorage, failed)
	}

	if result.ForwardSuccess {
		result.Response = outcome.Response.Body
	} else {
		result.Response = upstream.SuccessBody("inserted")
	}

	s.metrics.RecordRequest(obsmetrics.RequestResultSuccess)
	s.recordBatch(ctx, "success")
	log.Info("gateway batch processed",
		zap.Bool("forwarded", result.Forwarded),
		zap.Bool("forward_success", result.ForwardSuccess),
		zap.Int("stored", stored),
		zap.Int("failed", failed),
	)
	return result, nil
}

// relay never fails the request: any fault, including a panic from the
// config read or the forwarder, is logged and the batch is stored locally.
func (s *Service) relay(ctx context.Context, log *zap.Logger, batch *ingestdomain.Batch, result *ingestdomain.IngestResult) (outcome resilience.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("upstream relay panicked", zap.Any("panic", r))
			s.metrics.RecordForwardResult(obsmetrics.ForwardResultException)
			outcome = resilience.Outcome{Attempted: true, ErrorCode: upstream.CodeUnknown}
			result.Forwarded = true
			result.ForwardSuccess = false
			result.ForwardCode = upstream.CodeUnknown
		}
	}()

	if !s.config.GetBool(ctx, configdomain.KeyForwardingEnabled, true) {
		log.Info("forwarding disabled, storing locally only")
		s.metrics.RecordForwardResult(obsmetrics.ForwardResultDisabled)
		return resilience.Outcome{}
	}

	endpoint := s.config.GetString(ctx, configdomain.KeyRuuviCloudEndpoint, defaultEndpoint)
	timeout := s.config.GetFloat(ctx, configdomain.KeyRuuviCloudTimeout, defaultTimeoutSecs)

	outcome = s.forwarder.Forward(ctx, upstream.Request{
		Endpoint: endpoint,
		Timeout:  time.Duration(timeout * float64(time.Second)),
		Payload:  batch.UpstreamPayload(),
	})
	result.Forwarded = outcome.Attempted
	result.ForwardSuccess = outcome.Attempted && outcome.Success
	result.ForwardCode = outcome.ErrorCode
	if !outcome.Success {
		log.Warn("upstream relay failed, continuing with local storage",
			zap.String("error_code", outcome.ErrorCode),
			zap.Int("attempts", outcome.Attempts),
		)
	}
	return outcome
}

func (s *Service) recordBatch(ctx context.Context, result string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordIngestBatch(ctx, result)
}
