package domain

import (
	"time"

	"gorm.io/datatypes"
)

// BanditCheckpoint is the latest persisted snapshot of one context bucket.
type BanditCheckpoint struct {
	Bucket       string         `gorm:"column:bucket;primaryKey" json:"bucket"`
	Snapshot     datatypes.JSON `gorm:"column:snapshot;type:jsonb;not null" json:"snapshot"`
	Interactions int64          `gorm:"column:interactions" json:"interactions"`
	Arms         int            `gorm:"column:arms" json:"arms"`
	TakenAt      time.Time      `gorm:"column:taken_at;index" json:"taken_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BanditCheckpoint) TableName() string { return "bandit_checkpoints" }
