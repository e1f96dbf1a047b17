package auction

import (
	"time"

	"adDecisioning/domain"
)

type Config struct {
	ReservePrice   float64
	BidFloor       float64
	MaxWinners     int
	Timeout        time.Duration
	BanditOverride bool
	PacingTimeout  time.Duration
	CampaignTTL    time.Duration
}

const (
	eveningPeakMultiplier = 1.3 // 19:00-22:59
	lunchPeakMultiplier   = 1.1 // 12:00-14:59
	neutralMultiplier     = 1.0

	// post-auction bookkeeping runs detached from the request deadline
	postAuctionTimeout = 2 * time.Second

	decisionCacheSize = 100000
	decisionCacheTTL  = 24 * time.Hour
)

func ConfigFrom(c domain.AuctionConfig) Config {
	return Config{
		ReservePrice:   c.ReservePrice,
		BidFloor:       c.BidFloor,
		MaxWinners:     c.MaxWinners,
		Timeout:        time.Duration(c.TimeoutMs) * time.Millisecond,
		BanditOverride: c.BanditOverride,
		PacingTimeout:  time.Duration(c.PacingTimeoutMs) * time.Millisecond,
		CampaignTTL:    time.Duration(c.CampaignCacheSeconds) * time.Second,
	}
}

func DefaultConfig() Config {
	return ConfigFrom(domain.DefaultDecisioningConfig().Auction)
}
