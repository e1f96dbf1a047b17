// Package pacing holds the budget pacing contract consumed by the auction
// and an in-process implementation of it.
package pacing

import (
	"context"

	"adDecisioning/domain"
)

// Oracle spreads campaign budgets across the day. Filter drops campaigns
// that must not serve at all, Multiplier returns a bid scaling factor in
// [0, 1], and RecordSpend books the clearing price of a served impression.
type Oracle interface {
	Filter(ctx context.Context, campaigns []domain.Campaign) ([]domain.Campaign, error)
	Multiplier(ctx context.Context, campaignID string) (float64, error)
	RecordSpend(ctx context.Context, campaignID string, amount float64) error
}

// ClampMultiplier forces m into [0, 1]; NaN maps to the neutral 1.0.
func ClampMultiplier(m float64) float64 {
	switch {
	case m != m:
		return 1.0
	case m < 0:
		return 0
	case m > 1:
		return 1
	}
	return m
}
