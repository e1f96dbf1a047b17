package domain

const (
	BanditLinUCB   = "linucb"
	BanditThompson = "thompson"
	BanditUCB1     = "ucb1"
)

// BanditFeatureFlags toggle optional context feature groups.
type BanditFeatureFlags struct {
	UseTemporal  bool `json:"use_temporal" yaml:"use_temporal"`
	UseDevice    bool `json:"use_device" yaml:"use_device"`
	UseEmbedding bool `json:"use_embedding" yaml:"use_embedding"`
}

type BanditConfig struct {
	Algorithm       string  `json:"algorithm" yaml:"algorithm" validate:"oneof=linucb thompson ucb1"`
	Alpha           float64 `json:"alpha" yaml:"alpha" validate:"gte=0,lte=10"`
	Dimension       int     `json:"dimension" yaml:"dimension" validate:"gte=32,lte=256"`
	WarmupThreshold int     `json:"warmup_threshold" yaml:"warmup_threshold" validate:"gte=0"`
	MaxExploreRate  float64 `json:"max_explore_rate" yaml:"max_explore_rate" validate:"gte=0,lte=1"`
	// RefactorEvery bounds numeric drift of the incrementally maintained
	// inverse by recomputing it from a fresh Cholesky factorization.
	RefactorEvery             int `json:"refactor_every" yaml:"refactor_every" validate:"gte=1"`
	MaxArmsPerBucket          int `json:"max_arms_per_bucket" yaml:"max_arms_per_bucket" validate:"gte=1"`
	CheckpointIntervalMinutes int `json:"checkpoint_interval_minutes" yaml:"checkpoint_interval_minutes" validate:"gte=1"`

	Features BanditFeatureFlags `json:"features" yaml:"features"`
}
