package domain

import (
	"time"

	"gorm.io/datatypes"
)

type AuctionConfig struct {
	Type           string  `json:"type" yaml:"type" validate:"oneof=gsp"`
	ReservePrice   float64 `json:"reserve_price" yaml:"reserve_price" validate:"gte=0"`
	BidFloor       float64 `json:"bid_floor" yaml:"bid_floor" validate:"gte=0"`
	MaxWinners     int     `json:"max_winners" yaml:"max_winners" validate:"gte=1,lte=50"`
	TimeoutMs      int     `json:"timeout_ms" yaml:"timeout_ms" validate:"gte=1,lte=10000"`
	BanditOverride bool    `json:"bandit_override" yaml:"bandit_override"`
	// PacingTimeoutMs bounds each call into the pacing oracle.
	PacingTimeoutMs int `json:"pacing_timeout_ms" yaml:"pacing_timeout_ms" validate:"gte=1"`
	// CampaignCacheSeconds is how long the active campaign set is reused.
	CampaignCacheSeconds int `json:"campaign_cache_seconds" yaml:"campaign_cache_seconds" validate:"gte=0"`
}

type FrequencyConfig struct {
	PerHour              int `json:"per_hour" yaml:"per_hour" validate:"gte=1"`
	PerDay               int `json:"per_day" yaml:"per_day" validate:"gte=1"`
	PerWeek              int `json:"per_week" yaml:"per_week" validate:"gte=1"`
	PerCampaignPerDay    int `json:"per_campaign_per_day" yaml:"per_campaign_per_day" validate:"gte=1"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes" yaml:"sweep_interval_minutes" validate:"gte=1"`
}

type CausalConfig struct {
	ControlFraction        float64 `json:"control_fraction" yaml:"control_fraction" validate:"gte=0,lte=1"`
	ExperimentDurationDays int     `json:"experiment_duration_days" yaml:"experiment_duration_days" validate:"gte=1"`
	ConfidenceLevel        float64 `json:"confidence_level" yaml:"confidence_level" validate:"gt=0,lt=1"`
	MinSamples             int64   `json:"min_samples" yaml:"min_samples" validate:"gte=1"`
}

// DecisioningConfig is the runtime-tunable configuration of the whole core.
// It is loaded from YAML, validated, and swapped atomically on reload.
type DecisioningConfig struct {
	Auction   AuctionConfig   `json:"auction" yaml:"auction" validate:"required"`
	Frequency FrequencyConfig `json:"frequency" yaml:"frequency" validate:"required"`
	Bandit    BanditConfig    `json:"bandit" yaml:"bandit" validate:"required"`
	Causal    CausalConfig    `json:"causal" yaml:"causal" validate:"required"`
}

func DefaultDecisioningConfig() DecisioningConfig {
	return DecisioningConfig{
		Auction: AuctionConfig{
			Type:                 "gsp",
			ReservePrice:         0.01,
			BidFloor:             0.005,
			MaxWinners:           10,
			TimeoutMs:            50,
			BanditOverride:       true,
			PacingTimeoutMs:      5,
			CampaignCacheSeconds: 30,
		},
		Frequency: FrequencyConfig{
			PerHour:              5,
			PerDay:               20,
			PerWeek:              100,
			PerCampaignPerDay:    3,
			SweepIntervalMinutes: 60,
		},
		Bandit: BanditConfig{
			Algorithm:                 BanditLinUCB,
			Alpha:                     0.1,
			Dimension:                 50,
			WarmupThreshold:           50,
			MaxExploreRate:            0.3,
			RefactorEvery:             64,
			MaxArmsPerBucket:          200,
			CheckpointIntervalMinutes: 5,
			Features: BanditFeatureFlags{
				UseTemporal:  true,
				UseDevice:    true,
				UseEmbedding: true,
			},
		},
		Causal: CausalConfig{
			ControlFraction:        0.05,
			ExperimentDurationDays: 14,
			ConfidenceLevel:        0.95,
			MinSamples:             100,
		},
	}
}

// ConfigRevision records a decisioning config applied through the admin
// API so the latest one can be restored on restart.
type ConfigRevision struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Config    datatypes.JSON `gorm:"column:config;type:jsonb;not null" json:"config"`
	AppliedBy string         `gorm:"column:applied_by" json:"applied_by"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (ConfigRevision) TableName() string { return "config_revisions" }
