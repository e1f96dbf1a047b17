package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"adDecisioning/business/bandit"
	"adDecisioning/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BanditRepository stores the latest snapshot per context bucket.
type BanditRepository struct {
	DB *gorm.DB
}

var _ bandit.CheckpointRepository = (*BanditRepository)(nil)

func NewBanditRepository(db *gorm.DB) *BanditRepository {
	return &BanditRepository{DB: db}
}

func (r *BanditRepository) SaveCheckpoint(ctx context.Context, snap bandit.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	row := domain.BanditCheckpoint{
		Bucket:       snap.Bucket.Bucket,
		Snapshot:     raw,
		Interactions: snap.Bucket.Interactions,
		Arms:         len(snap.Arms),
		TakenAt:      snap.TakenAt,
	}

	if err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{"snapshot", "interactions", "arms", "taken_at", "updated_at"}),
		},
	).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to upsert bandit_checkpoints: %w", err)
	}

	return nil
}

func (r *BanditRepository) LoadCheckpoints(ctx context.Context) ([]bandit.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.BanditCheckpoint
	if err := r.DB.WithContext(ctx).Order("bucket").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query bandit_checkpoints: %w", err)
	}

	out := make([]bandit.Snapshot, 0, len(rows))
	for _, row := range rows {
		var snap bandit.Snapshot
		if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", row.Bucket, err)
		}
		out = append(out, snap)
	}
	return out, nil
}
