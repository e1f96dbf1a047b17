package bandit

import (
	"time"

	"adDecisioning/domain"
)

type Algorithm string

const (
	AlgorithmLinUCB   Algorithm = domain.BanditLinUCB
	AlgorithmThompson Algorithm = domain.BanditThompson
	AlgorithmUCB1     Algorithm = domain.BanditUCB1
)

type FeatureFlags struct {
	UseTemporal  bool
	UseDevice    bool
	UseEmbedding bool
}

type Config struct {
	Algorithm       Algorithm
	Alpha           float64
	Dimension       int
	WarmupThreshold int64
	MaxExploreRate  float64

	// the incrementally maintained inverse is recomputed from a fresh
	// Cholesky factorization every RefactorEvery updates
	RefactorEvery int

	// per-bucket arm cap enforced by the checkpoint sweep
	MaxArmsPerBucket   int
	CheckpointInterval time.Duration

	Features FeatureFlags
}

const (
	// arms sampled when estimating bucket-level uncertainty
	uncertaintySampleArms = 16

	// leading context coordinates hashed into the bucket key
	bucketCoordinates = 12
)

func ConfigFrom(c domain.BanditConfig) Config {
	return Config{
		Algorithm:          Algorithm(c.Algorithm),
		Alpha:              c.Alpha,
		Dimension:          c.Dimension,
		WarmupThreshold:    int64(c.WarmupThreshold),
		MaxExploreRate:     c.MaxExploreRate,
		RefactorEvery:      c.RefactorEvery,
		MaxArmsPerBucket:   c.MaxArmsPerBucket,
		CheckpointInterval: time.Duration(c.CheckpointIntervalMinutes) * time.Minute,
		Features: FeatureFlags{
			UseTemporal:  c.Features.UseTemporal,
			UseDevice:    c.Features.UseDevice,
			UseEmbedding: c.Features.UseEmbedding,
		},
	}
}

func DefaultConfig() Config {
	return ConfigFrom(domain.DefaultDecisioningConfig().Bandit)
}
