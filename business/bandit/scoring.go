package bandit

import (
	"math"
)

// scorer ranks arms for one context. total is the number of rewarded
// interactions in the bucket, used by UCB1.
type scorer interface {
	score(arm *ArmState, x []float64, total int64) (float64, error)
	uncertainty(arm *ArmState, x []float64, total int64) float64
}

func scorerFor(cfg Config, normal func() float64) scorer {
	switch cfg.Algorithm {
	case AlgorithmThompson:
		return thompson{normal: normal}
	case AlgorithmUCB1:
		return ucb1{}
	default:
		return linUCB{alpha: cfg.Alpha}
	}
}

// linUCB: θᵀx + α·sqrt(xᵀA⁻¹x)
type linUCB struct{ alpha float64 }

func (p linUCB) score(arm *ArmState, x []float64, _ int64) (float64, error) {
	return arm.mean(x) + p.alpha*arm.width(x), nil
}

func (linUCB) uncertainty(arm *ArmState, x []float64, _ int64) float64 {
	return arm.width(x)
}

// thompson samples the full posterior N(θ, A⁻¹).
type thompson struct{ normal func() float64 }

func (p thompson) score(arm *ArmState, x []float64, _ int64) (float64, error) {
	return arm.sample(x, p.normal)
}

func (thompson) uncertainty(arm *ArmState, x []float64, _ int64) float64 {
	return arm.width(x)
}

// ucb1 ignores the context; arms never played score +Inf so they are tried
// first.
type ucb1 struct{}

func (ucb1) score(arm *ArmState, _ []float64, total int64) (float64, error) {
	if arm.Plays == 0 {
		return math.Inf(1), nil
	}
	return arm.meanReward() + ucb1Bonus(arm.Plays, total), nil
}

func (ucb1) uncertainty(arm *ArmState, _ []float64, total int64) float64 {
	if arm.Plays == 0 {
		return 1
	}
	return ucb1Bonus(arm.Plays, total)
}

func ucb1Bonus(plays, total int64) float64 {
	if total < 1 {
		total = 1
	}
	return math.Sqrt(2 * math.Log(float64(total)) / float64(plays))
}
