package causal

import (
	"hash/fnv"

	"adDecisioning/domain"
)

// Assign places a user in the control or treatment group of a campaign's
// experiment. The split is a pure function of (user, campaign), so a user
// stays in the same group for the lifetime of an experiment. The hashed key
// is "user:campaign".
func Assign(userID, campaignID string, controlFraction float64) domain.ExperimentGroup {
	if unitHash(assignmentKey(userID, campaignID)) < controlFraction {
		return domain.GroupControl
	}
	return domain.GroupTreatment
}

func assignmentKey(userID, campaignID string) string {
	return userID + ":" + campaignID
}

// unitHash maps s uniformly onto [0, 1).
func unitHash(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64()>>11) / (1 << 53)
}
