package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ConfigEntry is one persisted configuration key.
type ConfigEntry struct {
	Key         string     `gorm:"column:config_key;type:varchar(128);primaryKey"`
	ValueType   ValueType  `gorm:"column:value_type;type:varchar(16)"`
	Value       string     `gorm:"column:config_value;type:text;not null"`
	LastUpdated *time.Time `gorm:"column:last_updated"`
	UpdatedBy   string     `gorm:"column:updated_by;type:varchar(255)"`
}

func (ConfigEntry) TableName() string { return "config_entries" }

// ConfigAudit records one successful configuration write.
type ConfigAudit struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Key       string       `gorm:"column:config_key;type:varchar(128);not null;index"`
	OldValue  *string      `gorm:"column:old_value;type:text"`
	NewValue  string       `gorm:"column:new_value;type:text;not null"`
	ValueType ValueType    `gorm:"column:value_type;type:varchar(16)"`
	UpdatedBy string       `gorm:"column:updated_by;type:varchar(255)"`
	CreatedAt time.Time    `gorm:"column:created_at;not null"`
}

func (ConfigAudit) TableName() string { return "config_audit_log" }

// EntryView is the externally visible shape of a configuration key.
type EntryView struct {
	Value       any        `json:"value"`
	LastUpdated *time.Time `json:"last_updated"`
	UpdatedBy   string     `json:"updated_by"`
}

func (e EntryView) IsDefault() bool {
	return e.UpdatedBy == UpdatedByDefault
}

const UpdatedByDefault = "default"
