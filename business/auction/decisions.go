package auction

import (
	"adDecisioning/domain"
	"adDecisioning/pkg/cache"
)

// decision is what feedback needs to credit the bandit for an auction.
type decision struct {
	UserID  string
	Bucket  string
	Vector  []float64
	Winners []domain.Winner
}

func (d decision) served(campaignID string) bool {
	for _, w := range d.Winners {
		if w.CampaignID == campaignID {
			return true
		}
	}
	return false
}

type decisionCache struct {
	lru *cache.LRUWithTTL[string, decision]
}

func newDecisionCache() *decisionCache {
	lru, err := cache.NewLRUWithTTL[string, decision](decisionCacheSize, decisionCacheTTL)
	if err != nil {
		// size is a positive constant
		panic(err)
	}
	return &decisionCache{lru: lru}
}

func (c *decisionCache) put(auctionID string, d decision) { c.lru.Set(auctionID, d) }

func (c *decisionCache) get(auctionID string) (decision, bool) { return c.lru.Get(auctionID) }

func (c *decisionCache) stats() cache.Stats { return c.lru.Stats() }
