package domain

import "time"

type ExperimentGroup string

const (
	GroupControl   ExperimentGroup = "control"
	GroupTreatment ExperimentGroup = "treatment"
)

type GroupStats struct {
	Users       int64   `json:"users"`
	Impressions int64   `json:"impressions"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// ConversionRate is conversions over impressions, zero when nothing was
// served.
func (g GroupStats) ConversionRate() float64 {
	if g.Impressions == 0 {
		return 0
	}
	return float64(g.Conversions) / float64(g.Impressions)
}

type Experiment struct {
	ID              string     `json:"id"`
	CampaignID      string     `json:"campaign_id"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	ControlFraction float64    `json:"control_fraction"`
	Control         GroupStats `json:"control"`
	Treatment       GroupStats `json:"treatment"`
}

func (e Experiment) Active(now time.Time) bool {
	return !now.Before(e.StartAt) && now.Before(e.EndAt)
}

func (e *Experiment) Group(g ExperimentGroup) *GroupStats {
	if g == GroupControl {
		return &e.Control
	}
	return &e.Treatment
}

type IncrementalityReport struct {
	ExperimentID           string     `json:"experiment_id"`
	CampaignID             string     `json:"campaign_id"`
	Control                GroupStats `json:"control"`
	Treatment              GroupStats `json:"treatment"`
	ControlRate            float64    `json:"control_rate"`
	TreatmentRate          float64    `json:"treatment_rate"`
	IncrementalityRate     float64    `json:"incrementality_rate"`
	ZScore                 float64    `json:"z_score"`
	PValue                 float64    `json:"p_value"`
	Significant            bool       `json:"significant"`
	Reliable               bool       `json:"reliable"`
	IncrementalConversions float64    `json:"incremental_conversions"`
	IncrementalRevenue     float64    `json:"incremental_revenue"`
	ComputedAt             time.Time  `json:"computed_at"`
}

// CREATE TABLE public.segment_lifts (
//     campaign_id TEXT NOT NULL,
//     segment     TEXT NOT NULL,
//     lift        NUMERIC NOT NULL,
//     updated_at  TIMESTAMPTZ,
//     PRIMARY KEY (campaign_id, segment)
// );

type SegmentLift struct {
	CampaignID string    `gorm:"column:campaign_id;primaryKey" json:"campaign_id"`
	Segment    string    `gorm:"column:segment;primaryKey" json:"segment"`
	Lift       float64   `gorm:"column:lift;type:numeric;not null" json:"lift"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
