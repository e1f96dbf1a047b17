package frequency

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"
)

const keyPrefix = "freq:"

func userKey(userID string) string {
	return keyPrefix + userID
}

// Counts are the impressions a user has seen inside each cap window.
type Counts struct {
	Hour        int `json:"hour"`
	Day         int `json:"day"`
	Week        int `json:"week"`
	CampaignDay int `json:"campaign_day"`
}

type Service struct {
	records kvstore.Log[domain.FrequencyRecord]
	cfg     atomic.Pointer[Config]
	now     func() time.Time

	// signals Run that the sweep interval may have changed
	reload chan struct{}
}

func NewService(records kvstore.Log[domain.FrequencyRecord], cfg Config) *Service {
	s := &Service{records: records, now: time.Now, reload: make(chan struct{}, 1)}
	s.cfg.Store(&cfg)
	return s
}

func (s *Service) SetConfig(cfg Config) {
	s.cfg.Store(&cfg)
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) config() Config { return *s.cfg.Load() }

// Filter keeps the campaigns the user may still be shown. Every campaign is
// checked against the same snapshot of the user's log.
func (s *Service) Filter(ctx context.Context, campaigns []domain.Campaign, userID string) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if len(campaigns) == 0 {
		return campaigns, nil
	}

	entries, err := s.records.Entries(ctx, userKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load frequency log: %w", err)
	}

	cfg := s.config()
	now := s.now()
	out := make([]domain.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		caps := cfg.capsFor(c)
		counts := countWindows(entries, c.ID, now)
		if allowed(counts, caps) {
			out = append(out, c)
		}
	}

	logger.Debug("frequency_filter",
		"trace_id", logger.TraceIDFromContext(ctx),
		"user_id", userID,
		"in", len(campaigns),
		"out", len(out),
	)
	return out, nil
}

// Eligible reports whether one campaign passes every cap for the user.
func (s *Service) Eligible(ctx context.Context, userID string, campaign domain.Campaign) (bool, error) {
	out, err := s.Filter(ctx, []domain.Campaign{campaign}, userID)
	if err != nil {
		return false, err
	}
	return len(out) == 1, nil
}

// Record appends an impression. Only served impressions are recorded.
func (s *Service) Record(ctx context.Context, userID, campaignID string) error {
	rec := domain.FrequencyRecord{CampaignID: campaignID, ShownAt: s.now()}
	if err := s.records.Append(ctx, userKey(userID), rec); err != nil {
		return fmt.Errorf("append frequency record: %w", err)
	}
	frequencyRecords.Inc()
	return nil
}

func (s *Service) Counts(ctx context.Context, userID, campaignID string) (Counts, error) {
	entries, err := s.records.Entries(ctx, userKey(userID))
	if err != nil {
		return Counts{}, fmt.Errorf("load frequency log: %w", err)
	}
	return countWindows(entries, campaignID, s.now()), nil
}

// Sweep trims entries older than the longest window from every user log.
// Only the expired prefix is trimmed, so entries appended concurrently are
// never lost.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	keys, err := s.records.Keys(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list frequency keys: %w", err)
	}

	now := s.now()
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("context error: %w", err)
		}
		entries, err := s.records.Entries(ctx, key)
		if err != nil {
			logger.Warn("frequency_sweep_read_failed", "key", key, "error", err)
			continue
		}
		n := expiredPrefix(entries, now)
		if n == 0 {
			continue
		}
		if err := s.records.TrimPrefix(ctx, key, n); err != nil {
			logger.Warn("frequency_sweep_trim_failed", "key", key, "error", err)
			continue
		}
		removed += n
	}

	frequencySwept.Add(float64(removed))
	logger.Info("frequency_sweep", "keys", len(keys), "removed", removed)
	return removed, nil
}

// Run sweeps on the configured interval until ctx is cancelled. A new
// interval from SetConfig takes effect immediately.
func (s *Service) Run(ctx context.Context) error {
	interval := s.config().SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.reload:
			if next := s.config().SweepInterval; next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error("frequency_sweep_failed", "error", err)
			}
		}
	}
}

func inWindow(ts, now time.Time, window time.Duration) bool {
	return now.Sub(ts) < window
}

func countWindows(entries []domain.FrequencyRecord, campaignID string, now time.Time) Counts {
	var c Counts
	for _, e := range entries {
		if !inWindow(e.ShownAt, now, weekWindow) {
			continue
		}
		c.Week++
		if inWindow(e.ShownAt, now, dayWindow) {
			c.Day++
			if e.CampaignID == campaignID {
				c.CampaignDay++
			}
		}
		if inWindow(e.ShownAt, now, hourWindow) {
			c.Hour++
		}
	}
	return c
}

func allowed(c Counts, caps Caps) bool {
	return c.Hour < caps.PerHour &&
		c.Day < caps.PerDay &&
		c.Week < caps.PerWeek &&
		c.CampaignDay < caps.PerCampaignPerDay
}

// expiredPrefix counts the leading entries that fell out of retention.
// Entries are appended in time order so the scan stops at the first live
// one.
func expiredPrefix(entries []domain.FrequencyRecord, now time.Time) int {
	for i, e := range entries {
		if inWindow(e.ShownAt, now, retention) {
			return i
		}
	}
	return len(entries)
}
