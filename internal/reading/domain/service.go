package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/ruuviproxy/pkg/db/pagination"
)

const (
	DefaultHistoryLimit = 100
	DefaultScanLimit    = 1000
	SecondsPerDay       = 86400
)

var (
	ErrInvalidDeviceID  = errors.New("invalid_device_id")
	ErrInvalidGatewayID = errors.New("invalid_gateway_id")
	ErrInvalidRange     = errors.New("invalid_time_range")
)

// HistoryQuery selects a device's readings in ascending timestamp order.
// Bounds are inclusive; Cursor resumes strictly after its timestamp.
type HistoryQuery struct {
	DeviceID  string
	StartTime *int64
	EndTime   *int64
	Limit     int
	Cursor    *pagination.Cursor
}

// GatewayQuery selects readings relayed by one gateway. The cursor carries the
// device id so equal timestamps from different tags are not skipped.
type GatewayQuery struct {
	GatewayID string
	StartTime *int64
	EndTime   *int64
	Limit     int
	Cursor    *pagination.Cursor
}

// HistoryPage is one page of a range query. NextCursor and NextToken are
// set only when more rows exist after the last item.
type HistoryPage struct {
	Items      []Reading
	NextCursor *pagination.Cursor
	NextToken  string
}

func (p HistoryPage) HasMore() bool { return p.NextCursor != nil }

// Store is the local time-series persistence for sensor readings.
type Store interface {
	StoreBatch(ctx context.Context, readings []Reading, ttlDays int) (success int, failure int)
	GetCurrent(ctx context.Context, deviceID string) (*Reading, error)
	GetHistorical(ctx context.Context, q HistoryQuery) (HistoryPage, error)
	GetMultipleCurrent(ctx context.Context, deviceIDs []string) (map[string]Reading, error)
	ListDevices(ctx context.Context, scanLimit int) ([]DeviceSummary, error)
	GetByGateway(ctx context.Context, q GatewayQuery) (HistoryPage, error)
	DeleteOldData(ctx context.Context, deviceID string, olderThan int64) (int64, error)
	PurgeExpired(ctx context.Context, now int64, batchSize int) (int64, error)
}
