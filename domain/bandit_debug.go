package domain

type BanditArmDebug struct {
	ArmID       string  `json:"arm_id"`
	Plays       int64   `json:"plays"`
	MeanReward  float64 `json:"mean_reward"`
	Mean        float64 `json:"mean"`        // θᵀx
	Uncertainty float64 `json:"uncertainty"` // sqrt(xᵀA⁻¹x) or the UCB1 bonus
	Score       float64 `json:"score"`       // what the configured algorithm ranks by
}

type BanditDebug struct {
	Bucket       string           `json:"bucket"`
	Interactions int64            `json:"interactions"`
	Algorithm    string           `json:"algorithm"`
	Selected     string           `json:"selected"`
	Arms         []BanditArmDebug `json:"arms"`
}
