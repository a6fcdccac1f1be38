package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"github.com/smallbiznis/ruuviproxy/pkg/db"
	"github.com/smallbiznis/ruuviproxy/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRetentionDays = 90

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         readingdomain.Repository
	Clock        clock.Clock               `optional:"true"`
	ProxyMetrics *obsmetrics.ProxyMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    readingdomain.Repository
	clock   clock.Clock
	metrics *obsmetrics.ProxyMetrics
}

func New(p Params) readingdomain.Store {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reading.service"),
		repo:    p.Repo,
		clock:   clk,
		metrics: p.ProxyMetrics,
	}
}

// StoreBatch writes every reading independently. A reading whose key already
// exists is left untouched and counted as stored.
func (s *Service) StoreBatch(ctx context.Context, readings []readingdomain.Reading, ttlDays int) (int, int) {
	if len(readings) == 0 {
		return 0, 0
	}
	if ttlDays <= 0 {
		ttlDays = defaultRetentionDays
	}

	now := s.clock.Now().Unix()
	expiresAt := now + int64(ttlDays)*readingdomain.SecondsPerDay

	var success, failure int
	for i := range readings {
		reading := readings[i]
		if reading.ServerTimestamp == 0 {
			reading.ServerTimestamp = now
		}
		reading.ExpiresAt = expiresAt

		err := s.repo.Insert(ctx, s.db, &reading)
		switch {
		case err == nil:
			success++
		case db.IsDuplicateKeyErr(err):
			s.log.Debug("reading already stored",
				zap.String("device_id", reading.DeviceID),
				zap.Int64("timestamp", reading.Timestamp),
			)
			success++
		default:
			failure++
			s.metrics.IncStorageError(err)
			s.log.Error("failed to store reading",
				zap.String("device_id", reading.DeviceID),
				zap.Int64("timestamp", reading.Timestamp),
				zap.Error(err),
			)
		}
	}

	s.metrics.AddStorage(obsmetrics.StorageResultSuccess, success)
	s.metrics.AddStorage(obsmetrics.StorageResultFailure, failure)
	s.log.Info("stored readings batch",
		zap.Int("success", success),
		zap.Int("failure", failure),
		zap.Int("ttl_days", ttlDays),
	)
	return success, failure
}

func (s *Service) GetCurrent(ctx context.Context, deviceID string) (*readingdomain.Reading, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, readingdomain.ErrInvalidDeviceID
	}
	reading, err := s.repo.FindLatest(ctx, s.db, deviceID, s.clock.Now().Unix())
	if err != nil {
		s.log.Error("failed to load current reading", zap.String("device_id", deviceID), zap.Error(err))
		return nil, err
	}
	return reading, nil
}

func (s *Service) GetHistorical(ctx context.Context, q readingdomain.HistoryQuery) (readingdomain.HistoryPage, error) {
	deviceID := strings.TrimSpace(q.DeviceID)
	if deviceID == "" {
		return readingdomain.HistoryPage{}, readingdomain.ErrInvalidDeviceID
	}
	filter, err := s.rangeFilter(q.StartTime, q.EndTime, q.Limit, q.Cursor)
	if err != nil {
		return readingdomain.HistoryPage{}, err
	}

	items, err := s.repo.FindRange(ctx, s.db, deviceID, filter)
	if err != nil {
		s.log.Error("failed to load reading history", zap.String("device_id", deviceID), zap.Error(err))
		return readingdomain.HistoryPage{}, err
	}
	return buildPage(items, filter.Limit-1)
}

func (s *Service) GetMultipleCurrent(ctx context.Context, deviceIDs []string) (map[string]readingdomain.Reading, error) {
	out := make(map[string]readingdomain.Reading, len(deviceIDs))
	ids := dedupe(deviceIDs)
	if len(ids) == 0 {
		return out, nil
	}

	items, err := s.repo.FindLatestMany(ctx, s.db, ids, s.clock.Now().Unix())
	if err != nil {
		s.log.Error("failed to load current readings", zap.Strings("device_ids", ids), zap.Error(err))
		return nil, err
	}
	for _, item := range items {
		out[item.DeviceID] = item
	}
	return out, nil
}

func (s *Service) ListDevices(ctx context.Context, scanLimit int) ([]readingdomain.DeviceSummary, error) {
	if scanLimit <= 0 {
		scanLimit = readingdomain.DefaultScanLimit
	}
	items, err := s.repo.ListLatestPerDevice(ctx, s.db, s.clock.Now().Unix(), scanLimit)
	if err != nil {
		s.log.Error("failed to list devices", zap.Error(err))
		return nil, err
	}

	if items == nil {
		items = []readingdomain.DeviceSummary{}
	}
	return items, nil
}

func (s *Service) GetByGateway(ctx context.Context, q readingdomain.GatewayQuery) (readingdomain.HistoryPage, error) {
	gatewayID := strings.TrimSpace(q.GatewayID)
	if gatewayID == "" {
		return readingdomain.HistoryPage{}, readingdomain.ErrInvalidGatewayID
	}
	filter, err := s.rangeFilter(q.StartTime, q.EndTime, q.Limit, q.Cursor)
	if err != nil {
		return readingdomain.HistoryPage{}, err
	}

	items, err := s.repo.FindByGateway(ctx, s.db, gatewayID, filter)
	if err != nil {
		s.log.Error("failed to load gateway history", zap.String("gateway_id", gatewayID), zap.Error(err))
		return readingdomain.HistoryPage{}, err
	}
	return buildPage(items, filter.Limit-1)
}

func (s *Service) DeleteOldData(ctx context.Context, deviceID string, olderThan int64) (int64, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, readingdomain.ErrInvalidDeviceID
	}
	deleted, err := s.repo.DeleteOlderThan(ctx, s.db, deviceID, olderThan)
	if err != nil {
		s.log.Error("failed to delete old readings", zap.String("device_id", deviceID), zap.Error(err))
		return 0, err
	}
	s.log.Info("deleted old readings",
		zap.String("device_id", deviceID),
		zap.Int64("older_than", olderThan),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (s *Service) PurgeExpired(ctx context.Context, now int64, batchSize int) (int64, error) {
	if now <= 0 {
		now = s.clock.Now().Unix()
	}
	start := time.Now()
	deleted, err := s.repo.DeleteExpired(ctx, s.db, now, batchSize)
	if err != nil {
		s.log.Error("failed to purge expired readings", zap.Error(err))
		return 0, err
	}
	s.metrics.AddPurged(deleted)
	if deleted > 0 {
		s.log.Info("purged expired readings",
			zap.Int64("deleted", deleted),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return deleted, nil
}

// rangeFilter returns a filter whose Limit already includes the look-ahead row.
func (s *Service) rangeFilter(startTime, endTime *int64, limit int, cursor *pagination.Cursor) (readingdomain.RangeFilter, error) {
	if startTime != nil && endTime != nil && *startTime > *endTime {
		return readingdomain.RangeFilter{}, readingdomain.ErrInvalidRange
	}
	if limit <= 0 {
		limit = readingdomain.DefaultHistoryLimit
	}
	filter := readingdomain.RangeFilter{
		StartTime: startTime,
		EndTime:   endTime,
		Now:       s.clock.Now().Unix(),
		Limit:     limit + 1,
	}
	if cursor != nil {
		ts := cursor.Timestamp
		filter.AfterTimestamp = &ts
		filter.AfterDeviceID = cursor.DeviceID
	}
	return filter, nil
}

func buildPage(items []readingdomain.Reading, limit int) (readingdomain.HistoryPage, error) {
	kept, info, err := pagination.BuildCursorPageInfo(items, limit, func(r readingdomain.Reading) pagination.Cursor {
		return pagination.Cursor{DeviceID: r.DeviceID, Timestamp: r.Timestamp}
	})
	if err != nil {
		return readingdomain.HistoryPage{}, err
	}

	page := readingdomain.HistoryPage{Items: kept}
	if page.Items == nil {
		page.Items = []readingdomain.Reading{}
	}
	if info != nil && info.HasMore {
		last := kept[len(kept)-1]
		page.NextCursor = &pagination.Cursor{DeviceID: last.DeviceID, Timestamp: last.Timestamp}
		page.NextToken = info.NextPageToken
	}
	return page, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
