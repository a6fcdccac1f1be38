package domain

import (
	"context"

	"gorm.io/gorm"
)

// RangeFilter narrows a timestamp-ordered scan. AfterTimestamp and
// AfterDeviceID form an exclusive keyset position.
type RangeFilter struct {
	StartTime      *int64
	EndTime        *int64
	AfterTimestamp *int64
	AfterDeviceID  string
	Now            int64
	Limit          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *Reading) error
	FindLatest(ctx context.Context, db *gorm.DB, deviceID string, now int64) (*Reading, error)
	FindLatestMany(ctx context.Context, db *gorm.DB, deviceIDs []string, now int64) ([]Reading, error)
	FindRange(ctx context.Context, db *gorm.DB, deviceID string, filter RangeFilter) ([]Reading, error)
	FindByGateway(ctx context.Context, db *gorm.DB, gatewayID string, filter RangeFilter) ([]Reading, error)
	ListLatestPerDevice(ctx context.Context, db *gorm.DB, now int64, limit int) ([]DeviceSummary, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, deviceID string, olderThan int64) (int64, error)
	DeleteExpired(ctx context.Context, db *gorm.DB, now int64, batchSize int) (int64, error)
}
