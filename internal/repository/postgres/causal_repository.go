package postgres

import (
	"context"
	"fmt"
	"time"

	"adDecisioning/business/causal"
	"adDecisioning/domain"

	"gorm.io/gorm"
)

// CausalRepository reads the causal event log back for offline
// estimation.
type CausalRepository struct {
	DB *gorm.DB
}

func NewCausalRepository(db *gorm.DB) *CausalRepository {
	return &CausalRepository{DB: db}
}

type ivRow struct {
	UserID  string
	Group   string
	Exposed bool
	Outcome float64
}

// IVObservations builds one observation per user of the experiment. The
// instrument is treatment assignment, exposure is having been served a
// real impression and the outcome is conversion value.
func (r *CausalRepository) IVObservations(ctx context.Context, experimentID string) ([]causal.IVObservation, error) {
	var rows []ivRow
	err := r.DB.WithContext(ctx).
		Model(&domain.CausalEvent{}).
		Select(`user_id,
			MIN(group_name) AS "group",
			BOOL_OR(kind = ? AND NOT ghost) AS exposed,
			COALESCE(SUM(CASE WHEN kind = ? THEN value ELSE 0 END), 0) AS outcome`,
			domain.CausalImpression, domain.CausalConversion).
		Where("experiment_id = ?", experimentID).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate causal events: %w", err)
	}

	out := make([]causal.IVObservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, causal.IVObservation{
			Assigned: row.Group == string(domain.GroupTreatment),
			Exposed:  row.Exposed,
			Outcome:  row.Outcome,
		})
	}
	return out, nil
}

type dailyRow struct {
	CampaignID string
	Day        time.Time
	Total      float64
}

// DailyConversions returns per-campaign daily conversion value between
// from and to, one slot per day with zero for days without conversions.
func (r *CausalRepository) DailyConversions(ctx context.Context, campaignIDs []string, from, to time.Time) (map[string][]float64, error) {
	var rows []dailyRow
	err := r.DB.WithContext(ctx).
		Model(&domain.CausalEvent{}).
		Select("campaign_id, date_trunc('day', created_at) AS day, SUM(value) AS total").
		Where("kind = ? AND campaign_id IN ? AND created_at >= ? AND created_at < ?",
			domain.CausalConversion, campaignIDs, from, to).
		Group("campaign_id, day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily conversions: %w", err)
	}

	days := int(to.Sub(from).Hours() / 24)
	out := make(map[string][]float64, len(campaignIDs))
	for _, id := range campaignIDs {
		out[id] = make([]float64, days)
	}
	start := from.Truncate(24 * time.Hour)
	for _, row := range rows {
		i := int(row.Day.Sub(start).Hours() / 24)
		if i >= 0 && i < days {
			out[row.CampaignID][i] += row.Total
		}
	}
	return out, nil
}
