package auction

import (
	"context"
	"fmt"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CampaignRepository loads campaigns that are not paused.
type CampaignRepository interface {
	ActiveCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

const activeKey = "active"

// CachedSource serves active campaigns from a short-lived cache. Concurrent
// misses share one repository call.
type CachedSource struct {
	repo  CampaignRepository
	ttl   time.Duration
	cache *expirable.LRU[string, []domain.Campaign]
	group singleflight.Group
	now   func() time.Time
}

// NewCachedSource caches for ttl; a non-positive ttl reloads on every call.
func NewCachedSource(repo CampaignRepository, ttl time.Duration) *CachedSource {
	return &CachedSource{
		repo:  repo,
		ttl:   ttl,
		cache: expirable.NewLRU[string, []domain.Campaign](1, nil, ttl),
		now:   time.Now,
	}
}

func (s *CachedSource) SetClock(now func() time.Time) { s.now = now }

// Invalidate drops the cached set so the next call reloads.
func (s *CachedSource) Invalidate() { s.cache.Purge() }

// Campaigns returns the campaigns running at the current time.
func (s *CachedSource) Campaigns(ctx context.Context) ([]domain.Campaign, error) {
	all, ok := s.cache.Get(activeKey)
	if !ok {
		v, err, shared := s.group.Do(activeKey, func() (any, error) {
			cs, err := s.repo.ActiveCampaigns(ctx)
			if err != nil {
				return nil, err
			}
			if s.ttl > 0 {
				s.cache.Add(activeKey, cs)
			}
			return cs, nil
		})
		if err != nil {
			return nil, fmt.Errorf("load campaigns: %w", err)
		}
		if shared {
			logger.Debug("auction_campaigns_shared_load")
		}
		all = v.([]domain.Campaign)
	}

	now := s.now()
	live := make([]domain.Campaign, 0, len(all))
	for _, c := range all {
		if c.Live(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

// StaticRepository serves a fixed campaign set. Used for local runs and
// tests.
type StaticRepository struct {
	Items []domain.Campaign
}

func (r StaticRepository) ActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Campaign, len(r.Items))
	copy(out, r.Items)
	return out, nil
}
