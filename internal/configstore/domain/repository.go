package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*ConfigEntry, error)
	List(ctx context.Context, db *gorm.DB) ([]ConfigEntry, error)
	Upsert(ctx context.Context, db *gorm.DB, entry *ConfigEntry) error
	InsertAudit(ctx context.Context, db *gorm.DB, audit *ConfigAudit) error
	ListAudit(ctx context.Context, db *gorm.DB, key string, limit int) ([]ConfigAudit, error)
}
