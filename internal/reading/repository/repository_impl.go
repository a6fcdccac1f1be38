package repository

import (
	"context"
	"fmt"
	"strings"

	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"gorm.io/gorm"
)

const readingColumns = `device_id, device_ts, gateway_id, server_ts, measurements, vendor_response, expires_at`

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reading *readingdomain.Reading) error {
	return db.WithContext(ctx).Create(reading).Error
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, deviceID string, now int64) (*readingdomain.Reading, error) {
	var items []readingdomain.Reading
	err := db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+`
		 FROM sensor_readings
		 WHERE device_id = ? AND expires_at > ?
		 ORDER BY device_ts DESC
		 LIMIT 1`,
		deviceID,
		now,
	).Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("reading.repository: find latest: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindLatestMany(ctx context.Context, db *gorm.DB, deviceIDs []string, now int64) ([]readingdomain.Reading, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	var items []readingdomain.Reading
	err := db.WithContext(ctx).Raw(
		`SELECT r.device_id, r.device_ts, r.gateway_id, r.server_ts, r.measurements, r.vendor_response, r.expires_at
		 FROM sensor_readings r
		 JOIN (
			SELECT device_id, MAX(device_ts) AS max_ts
			FROM sensor_readings
			WHERE device_id IN ? AND expires_at > ?
			GROUP BY device_id
		 ) latest ON latest.device_id = r.device_id AND latest.max_ts = r.device_ts`,
		deviceIDs,
		now,
	).Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("reading.repository: find latest many: %w", err)
	}
	return items, nil
}

func (r *repo) FindRange(ctx context.Context, db *gorm.DB, deviceID string, filter readingdomain.RangeFilter) ([]readingdomain.Reading, error) {
	var (
		query strings.Builder
		args  = []any{deviceID, filter.Now}
	)
	query.WriteString(`SELECT ` + readingColumns + `
		 FROM sensor_readings
		 WHERE device_id = ? AND expires_at > ?`)
	args = appendBounds(&query, args, filter)
	if filter.AfterTimestamp != nil {
		query.WriteString(` AND device_ts > ?`)
		args = append(args, *filter.AfterTimestamp)
	}
	query.WriteString(` ORDER BY device_ts ASC LIMIT ?`)
	args = append(args, filter.Limit)

	var items []readingdomain.Reading
	if err := db.WithContext(ctx).Raw(query.String(), args...).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("reading.repository: find range: %w", err)
	}
	return items, nil
}

func (r *repo) FindByGateway(ctx context.Context, db *gorm.DB, gatewayID string, filter readingdomain.RangeFilter) ([]readingdomain.Reading, error) {
	var (
		query strings.Builder
		args  = []any{gatewayID, filter.Now}
	)
	query.WriteString(`SELECT ` + readingColumns + `
		 FROM sensor_readings
		 WHERE gateway_id = ? AND expires_at > ?`)
	args = appendBounds(&query, args, filter)
	if filter.AfterTimestamp != nil {
		query.WriteString(` AND (device_ts > ? OR (device_ts = ? AND device_id > ?))`)
		args = append(args, *filter.AfterTimestamp, *filter.AfterTimestamp, filter.AfterDeviceID)
	}
	query.WriteString(` ORDER BY device_ts ASC, device_id ASC LIMIT ?`)
	args = append(args, filter.Limit)

	var items []readingdomain.Reading
	if err := db.WithContext(ctx).Raw(query.String(), args...).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("reading.repository: find by gateway: %w", err)
	}
	return items, nil
}

func appendBounds(query *strings.Builder, args []any, filter readingdomain.RangeFilter) []any {
	if filter.StartTime != nil {
		query.WriteString(` AND device_ts >= ?`)
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		query.WriteString(` AND device_ts <= ?`)
		args = append(args, *filter.EndTime)
	}
	return args
}

func (r *repo) ListLatestPerDevice(ctx context.Context, db *gorm.DB, now int64, limit int) ([]readingdomain.DeviceSummary, error) {
	var items []readingdomain.DeviceSummary
	err := db.WithContext(ctx).Raw(
		`SELECT r.device_id, r.gateway_id, r.device_ts, r.server_ts
		 FROM sensor_readings r
		 JOIN (
			SELECT device_id, MAX(device_ts) AS max_ts
			FROM sensor_readings
			WHERE expires_at > ?
			GROUP BY device_id
		 ) latest ON latest.device_id = r.device_id AND latest.max_ts = r.device_ts
		 ORDER BY r.device_ts DESC, r.device_id ASC
		 LIMIT ?`,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("reading.repository: list devices: %w", err)
	}
	return items, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, deviceID string, olderThan int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM sensor_readings WHERE device_id = ? AND device_ts < ?`,
		deviceID,
		olderThan,
	)
	if res.Error != nil {
		return 0, fmt.Errorf("reading.repository: delete old data: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteExpired removes at most roughly batchSize expired rows. The cutoff is
// the batchSize-th oldest expiry so the delete stays portable across dialects
// that lack DELETE ... LIMIT.
func (r *repo) DeleteExpired(ctx context.Context, db *gorm.DB, now int64, batchSize int) (int64, error) {
	cutoff := now
	if batchSize > 0 {
		var expiries []int64
		err := db.WithContext(ctx).Raw(
			`SELECT expires_at FROM sensor_readings
			 WHERE expires_at <= ?
			 ORDER BY expires_at ASC
			 LIMIT 1 OFFSET ?`,
			now,
			batchSize-1,
		).Scan(&expiries).Error
		if err != nil {
			return 0, fmt.Errorf("reading.repository: purge cutoff: %w", err)
		}
		if len(expiries) > 0 {
			cutoff = expiries[0]
		}
	}

	res := db.WithContext(ctx).Exec(`DELETE FROM sensor_readings WHERE expires_at <= ?`, cutoff)
	if res.Error != nil {
		return 0, fmt.Errorf("reading.repository: purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
