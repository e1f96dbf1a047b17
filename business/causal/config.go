package causal

import (
	"time"

	"adDecisioning/domain"
)

type Config struct {
	ControlFraction    float64
	ExperimentDuration time.Duration
	ConfidenceLevel    float64
	// both groups need this many impressions before a report is trusted
	MinSamples int64
}

const (
	experimentWeight = 0.6
	segmentWeight    = 0.4
	minScore         = 0.1
	maxScore         = 2.0

	cacheSize          = 10000
	experimentCacheTTL = 5 * time.Second
	scoreCacheTTL      = 30 * time.Second
)

func ConfigFrom(c domain.CausalConfig) Config {
	return Config{
		ControlFraction:    c.ControlFraction,
		ExperimentDuration: time.Duration(c.ExperimentDurationDays) * 24 * time.Hour,
		ConfidenceLevel:    c.ConfidenceLevel,
		MinSamples:         c.MinSamples,
	}
}

func DefaultConfig() Config {
	return ConfigFrom(domain.DefaultDecisioningConfig().Causal)
}
