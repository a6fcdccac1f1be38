package repository

import (
	"context"

	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() configdomain.Repository {
	return &repo{}
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*configdomain.ConfigEntry, error) {
	var entries []configdomain.ConfigEntry
	err := db.WithContext(ctx).Raw(
		`SELECT config_key, value_type, config_value, last_updated, updated_by
		 FROM config_entries WHERE config_key = ?`,
		key,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]configdomain.ConfigEntry, error) {
	var entries []configdomain.ConfigEntry
	err := db.WithContext(ctx).Raw(
		`SELECT config_key, value_type, config_value, last_updated, updated_by
		 FROM config_entries ORDER BY config_key ASC`,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Upsert relies on the dialect's conflict clause so the same call works on
// postgres, mysql and sqlite.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entry *configdomain.ConfigEntry) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_type", "config_value", "last_updated", "updated_by"}),
	}).Create(entry).Error
}

func (r *repo) InsertAudit(ctx context.Context, db *gorm.DB, audit *configdomain.ConfigAudit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO config_audit_log (id, config_key, old_value, new_value, value_type, updated_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		audit.ID,
		audit.Key,
		audit.OldValue,
		audit.NewValue,
		audit.ValueType,
		audit.UpdatedBy,
		audit.CreatedAt,
	).Error
}

func (r *repo) ListAudit(ctx context.Context, db *gorm.DB, key string, limit int) ([]configdomain.ConfigAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []configdomain.ConfigAudit
	err := db.WithContext(ctx).Raw(
		`SELECT id, config_key, old_value, new_value, value_type, updated_by, created_at
		 FROM config_audit_log WHERE config_key = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		key,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
