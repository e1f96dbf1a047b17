package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adDecisioning/domain"

	"gorm.io/gorm"
)

// ConfigRevisionRepository keeps the history of decisioning configs
// applied at runtime.
type ConfigRevisionRepository struct {
	DB *gorm.DB
}

func NewConfigRevisionRepository(db *gorm.DB) *ConfigRevisionRepository {
	return &ConfigRevisionRepository{DB: db}
}

func (r *ConfigRevisionRepository) SaveRevision(ctx context.Context, cfg domain.DecisioningConfig, appliedBy string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	row := domain.ConfigRevision{Config: raw, AppliedBy: appliedBy}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save config revision: %w", err)
	}
	return nil
}

// LatestRevision returns the most recently applied config, if any.
func (r *ConfigRevisionRepository) LatestRevision(ctx context.Context) (domain.DecisioningConfig, bool, error) {
	var row domain.ConfigRevision
	err := r.DB.WithContext(ctx).Order("created_at DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DecisioningConfig{}, false, nil
	}
	if err != nil {
		return domain.DecisioningConfig{}, false, fmt.Errorf("failed to query config_revisions: %w", err)
	}

	cfg := domain.DefaultDecisioningConfig()
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return domain.DecisioningConfig{}, false, fmt.Errorf("failed to unmarshal config revision %d: %w", row.ID, err)
	}
	return cfg, true, nil
}
