package bandit

import (
	"fmt"

	"adDecisioning/domain"
)

const (
	rewardImpression = 0.0
	rewardClick      = 1.0
	rewardConversion = 1.0

	// how much conversion value adds on top of the base reward
	valueWeight = 0.01
	maxReward   = 10.0
)

// RewardFor turns auction feedback into a bandit reward.
func RewardFor(kind domain.FeedbackKind, value float64) (float64, error) {
	var base float64
	switch kind {
	case domain.FeedbackImpression:
		base = rewardImpression
	case domain.FeedbackClick:
		base = rewardClick
	case domain.FeedbackConversion:
		base = rewardConversion
	default:
		return 0, fmt.Errorf("unknown feedback kind: %s", kind)
	}

	if value > 0 {
		base += valueWeight * value
	}
	if base > maxReward {
		base = maxReward
	}
	return base, nil
}
