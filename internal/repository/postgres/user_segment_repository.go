package postgres

import (
	"context"
	"errors"
	"time"

	"adDecisioning/business/causal"
	"adDecisioning/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SegmentLiftRepository serves per-segment lift computed by offline
// analysis.
type SegmentLiftRepository struct {
	DB *gorm.DB
}

var _ causal.SegmentLiftRepository = (*SegmentLiftRepository)(nil)

func NewSegmentLiftRepository(db *gorm.DB) *SegmentLiftRepository {
	return &SegmentLiftRepository{DB: db}
}

func (r *SegmentLiftRepository) GetSegmentLift(ctx context.Context, campaignID, segment string) (float64, bool, error) {
	var row domain.SegmentLift
	err := r.DB.WithContext(ctx).First(&row, "campaign_id = ? AND segment = ?", campaignID, segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Lift, true, nil
}

func (r *SegmentLiftRepository) UpsertSegmentLift(ctx context.Context, campaignID, segment string, lift float64) error {
	row := domain.SegmentLift{
		CampaignID: campaignID,
		Segment:    segment,
		Lift:       lift,
		UpdatedAt:  time.Now(),
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "segment"}},
			DoUpdates: clause.AssignmentColumns([]string{"lift", "updated_at"}),
		}).
		Create(&row).Error
}
