package pacing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"
)

const spendPrefix = "spend:"

func spendKey(campaignID string, day time.Time) string {
	return spendPrefix + day.Format("2006-01-02") + ":" + campaignID
}

type budget struct {
	daily     float64
	remaining float64
}

// LocalOracle paces against daily budgets using spend counters held in a
// kvstore. Budgets are learned from the campaigns passed to Filter.
type LocalOracle struct {
	spend kvstore.Store[float64]
	now   func() time.Time

	mu      sync.RWMutex
	budgets map[string]budget
}

var _ Oracle = (*LocalOracle)(nil)

func NewLocalOracle(spend kvstore.Store[float64]) *LocalOracle {
	return &LocalOracle{
		spend:   spend,
		now:     time.Now,
		budgets: make(map[string]budget),
	}
}

func (o *LocalOracle) SetClock(now func() time.Time) { o.now = now }

func (o *LocalOracle) Filter(ctx context.Context, campaigns []domain.Campaign) ([]domain.Campaign, error) {
	now := o.now()
	out := make([]domain.Campaign, 0, len(campaigns))

	o.mu.Lock()
	for _, c := range campaigns {
		o.budgets[c.ID] = budget{daily: c.DailyBudget, remaining: c.RemainingBudget}
	}
	o.mu.Unlock()

	for _, c := range campaigns {
		if c.Status == domain.CampaignStatusPausedOverspend {
			continue
		}
		if c.DailyBudget > 0 {
			spent, err := o.SpentToday(ctx, c.ID, now)
			if err != nil {
				return nil, err
			}
			if spent >= c.DailyBudget {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Multiplier compares spend against an even delivery curve over the day.
// Campaigns ahead of schedule get a proportionally smaller multiplier.
func (o *LocalOracle) Multiplier(ctx context.Context, campaignID string) (float64, error) {
	o.mu.RLock()
	b, ok := o.budgets[campaignID]
	o.mu.RUnlock()
	if !ok || b.daily <= 0 {
		return 1.0, nil
	}

	now := o.now()
	spent, err := o.SpentToday(ctx, campaignID, now)
	if err != nil {
		return 0, err
	}

	left := b.daily - spent
	if b.remaining > 0 && b.remaining < left {
		left = b.remaining
	}
	if left <= 0 {
		return 0, nil
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(dayStart).Hours() / 24
	ideal := b.daily * (1 - elapsed)
	if ideal <= 0 {
		return 1.0, nil
	}
	return ClampMultiplier(left / ideal), nil
}

func (o *LocalOracle) RecordSpend(ctx context.Context, campaignID string, amount float64) error {
	if amount <= 0 {
		return nil
	}
	key := spendKey(campaignID, o.now())
	_, err := kvstore.Update(ctx, o.spend, key, func(cur float64, _ bool) (float64, error) {
		return cur + amount, nil
	})
	if err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}

func (o *LocalOracle) SpentToday(ctx context.Context, campaignID string, now time.Time) (float64, error) {
	v, _, err := o.spend.Get(ctx, spendKey(campaignID, now))
	if err != nil {
		return 0, fmt.Errorf("load spend: %w", err)
	}
	return v.Value, nil
}

// Sweep deletes spend counters from previous days.
func (o *LocalOracle) Sweep(ctx context.Context) (int, error) {
	keys, err := o.spend.Keys(ctx, spendPrefix)
	if err != nil {
		return 0, fmt.Errorf("list spend keys: %w", err)
	}
	today := spendPrefix + o.now().Format("2006-01-02") + ":"
	removed := 0
	for _, k := range keys {
		if strings.HasPrefix(k, today) {
			continue
		}
		if err := o.spend.Delete(ctx, k); err != nil {
			logger.Warn("pacing_sweep_delete_failed", "key", k, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
