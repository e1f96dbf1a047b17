package auction

import (
	"slices"
	"strings"
	"time"

	"adDecisioning/domain"
)

func containsFold(set []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// interestOverlap is the fraction of the campaign's interests the user
// shares.
func interestOverlap(campaign, user []string) float64 {
	if len(campaign) == 0 {
		return 0
	}
	n := 0
	for _, c := range campaign {
		if containsFold(user, c) {
			n++
		}
	}
	return float64(n) / float64(len(campaign))
}

// Matches reports whether every configured targeting dimension accepts the
// request. Unconfigured dimensions accept everything.
func Matches(c domain.Campaign, u domain.UserFeatures, cf domain.ContextFeatures, now time.Time) bool {
	t := c.Targeting
	if len(t.AgeGroups) > 0 && !containsFold(t.AgeGroups, u.Demographic.ResolvedAgeGroup()) {
		return false
	}
	if len(t.Locations) > 0 && !containsFold(t.Locations, cf.ResolveLocation(u)) {
		return false
	}
	if len(t.Interests) > 0 && interestOverlap(t.Interests, u.Interests) == 0 {
		return false
	}
	if len(t.Devices) > 0 && !containsFold(t.Devices, cf.DeviceType) {
		return false
	}
	if len(t.Hours) > 0 && !slices.Contains(t.Hours, cf.ResolveHour(now)) {
		return false
	}
	return true
}

const (
	ageWeight      = 1.0
	interestWeight = 2.0
	locationWeight = 1.0
)

// TargetingScore is the weighted fraction of the configured age, interest
// and location dimensions that match, in [0, 1]. Interests count by
// overlap. Devices and hours only filter. It is zero when none of the
// scored dimensions is configured.
func TargetingScore(c domain.Campaign, u domain.UserFeatures, cf domain.ContextFeatures) float64 {
	t := c.Targeting
	var total, matched float64
	if len(t.AgeGroups) > 0 {
		total += ageWeight
		if containsFold(t.AgeGroups, u.Demographic.ResolvedAgeGroup()) {
			matched += ageWeight
		}
	}
	if len(t.Interests) > 0 {
		total += interestWeight
		matched += interestWeight * interestOverlap(t.Interests, u.Interests)
	}
	if len(t.Locations) > 0 {
		total += locationWeight
		if containsFold(t.Locations, cf.ResolveLocation(u)) {
			matched += locationWeight
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}
