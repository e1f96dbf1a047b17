package postgres

import (
	"context"
	"errors"
	"fmt"

	"adDecisioning/business/auction"
	"adDecisioning/domain"

	"gorm.io/gorm"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type CampaignRepository struct {
	DB *gorm.DB
}

var _ auction.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

func (r *CampaignRepository) ActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var campaigns []domain.Campaign
	err := r.DB.WithContext(ctx).
		Preload("Creatives").
		Where("status = ?", domain.CampaignStatusActive).
		Order("id").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active campaigns: %w", err)
	}

	for i := range campaigns {
		if err := campaigns[i].DecodeJSONColumns(); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (r *CampaignRepository) FindByID(ctx context.Context, id string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, fmt.Errorf("context error: %w", err)
	}

	var c domain.Campaign
	err := r.DB.WithContext(ctx).Preload("Creatives").First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Campaign{}, ErrCampaignNotFound
		}
		return domain.Campaign{}, fmt.Errorf("failed to find campaign: %w", err)
	}
	if err := c.DecodeJSONColumns(); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res := r.DB.WithContext(ctx).Model(&domain.Campaign{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}
