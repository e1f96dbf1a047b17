package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// CREATE TABLE public.campaigns (
//     id               TEXT PRIMARY KEY,
//     name             TEXT NOT NULL,
//     status           TEXT NOT NULL DEFAULT 'active',
//     base_bid         NUMERIC NOT NULL,
//     quality_score    NUMERIC NOT NULL DEFAULT 1,
//     daily_budget     NUMERIC NOT NULL DEFAULT 0,
//     remaining_budget NUMERIC NOT NULL DEFAULT 0,
//     target_cpa       NUMERIC NOT NULL DEFAULT 0,
//     historical_ctr   NUMERIC NOT NULL DEFAULT 0,
//     historical_cvr   NUMERIC NOT NULL DEFAULT 0,
//     targeting        JSONB,
//     frequency_caps   JSONB,
//     start_at         TIMESTAMPTZ,
//     end_at           TIMESTAMPTZ
// );

const (
	CampaignStatusActive          = "active"
	CampaignStatusPaused          = "paused"
	CampaignStatusPausedOverspend = "paused_overspend"
)

type Targeting struct {
	AgeGroups []string `json:"age_groups,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Devices   []string `json:"devices,omitempty"`
	Hours     []int    `json:"hours,omitempty"`
}

// FrequencyCaps are per-campaign overrides. A zero field falls back to the
// service-wide default for that window.
type FrequencyCaps struct {
	PerHour           int `json:"per_hour,omitempty" yaml:"per_hour"`
	PerDay            int `json:"per_day,omitempty" yaml:"per_day"`
	PerWeek           int `json:"per_week,omitempty" yaml:"per_week"`
	PerCampaignPerDay int `json:"per_campaign_per_day,omitempty" yaml:"per_campaign_per_day"`
}

type Creative struct {
	ID         string `gorm:"column:id;primaryKey" json:"id"`
	CampaignID string `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	Format     string `gorm:"column:format" json:"format"`
	AssetURL   string `gorm:"column:asset_url" json:"asset_url"`
}

type Campaign struct {
	ID              string  `gorm:"column:id;primaryKey" json:"id"`
	Name            string  `gorm:"column:name" json:"name"`
	Status          string  `gorm:"column:status;default:active" json:"status"`
	BaseBid         float64 `gorm:"column:base_bid;type:numeric" json:"base_bid"`
	QualityScore    float64 `gorm:"column:quality_score;type:numeric" json:"quality_score"`
	DailyBudget     float64 `gorm:"column:daily_budget;type:numeric" json:"daily_budget"`
	RemainingBudget float64 `gorm:"column:remaining_budget;type:numeric" json:"remaining_budget"`
	TargetCPA       float64 `gorm:"column:target_cpa;type:numeric" json:"target_cpa"`
	HistoricalCTR   float64 `gorm:"column:historical_ctr;type:numeric" json:"historical_ctr"`
	HistoricalCVR   float64 `gorm:"column:historical_cvr;type:numeric" json:"historical_cvr"`

	TargetingRaw  datatypes.JSON `gorm:"column:targeting;type:jsonb" json:"-"`
	Targeting     Targeting      `gorm:"-" json:"targeting"`
	CapsRaw       datatypes.JSON `gorm:"column:frequency_caps;type:jsonb" json:"-"`
	FrequencyCaps *FrequencyCaps `gorm:"-" json:"frequency_caps,omitempty"`

	Creatives []Creative `gorm:"foreignKey:CampaignID" json:"creatives"`

	StartAt *time.Time `gorm:"column:start_at" json:"start_at,omitempty"`
	EndAt   *time.Time `gorm:"column:end_at" json:"end_at,omitempty"`
}

// DecodeJSONColumns fills Targeting and FrequencyCaps from their raw jsonb
// columns.
func (c *Campaign) DecodeJSONColumns() error {
	if len(c.TargetingRaw) > 0 {
		if err := json.Unmarshal([]byte(c.TargetingRaw), &c.Targeting); err != nil {
			return fmt.Errorf("campaign %s targeting: %w", c.ID, err)
		}
	}
	if len(c.CapsRaw) > 0 && string(c.CapsRaw) != "null" {
		var caps FrequencyCaps
		if err := json.Unmarshal([]byte(c.CapsRaw), &caps); err != nil {
			return fmt.Errorf("campaign %s frequency caps: %w", c.ID, err)
		}
		c.FrequencyCaps = &caps
	}
	return nil
}

// PrimaryCreative returns the first creative id or "" when none is attached.
func (c Campaign) PrimaryCreative() string {
	if len(c.Creatives) == 0 {
		return ""
	}
	return c.Creatives[0].ID
}

// Live reports whether the campaign is active and inside its flight window.
func (c Campaign) Live(now time.Time) bool {
	if c.Status != "" && c.Status != CampaignStatusActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && !now.Before(*c.EndAt) {
		return false
	}
	return true
}
