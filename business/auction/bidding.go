package auction

import (
	"context"
	"math"
	"time"

	"adDecisioning/domain"
)

// Predictor estimates click and conversion probability for a campaign and
// request. Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, c domain.Campaign, u domain.UserFeatures, cf domain.ContextFeatures) (ctr, cvr float64)
}

// PriorPredictor returns the campaign's historical CTR and CVR, nudged by
// the user's own click-through history when it is known.
type PriorPredictor struct{}

const userCTRWeight = 0.2

func (PriorPredictor) Predict(_ context.Context, c domain.Campaign, u domain.UserFeatures, _ domain.ContextFeatures) (float64, float64) {
	ctr := c.HistoricalCTR
	if u.Behavioral.ClickThroughRate > 0 && ctr > 0 {
		ctr = (1-userCTRWeight)*ctr + userCTRWeight*u.Behavioral.ClickThroughRate
	}
	return clampProbability(ctr), clampProbability(c.HistoricalCVR)
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// CompetitiveMultiplier scales bids by expected competition at the hour.
func CompetitiveMultiplier(hour int) float64 {
	switch {
	case hour >= 19 && hour <= 22:
		return eveningPeakMultiplier
	case hour >= 12 && hour <= 14:
		return lunchPeakMultiplier
	default:
		return neutralMultiplier
	}
}

type bidInput struct {
	campaign       domain.Campaign
	user           domain.UserFeatures
	context        domain.ContextFeatures
	now            time.Time
	ctr, cvr       float64
	pacing         float64
	incrementality float64
}

// computeBid applies the bid formula:
//
//	bid = baseBid × (1 + 0.5×targetingScore), capped by targetCPA×CVR×CTR
//	bid ×= pacing × competitive × incrementality
//
// The cap only applies when a target CPA and both predictions are set.
func computeBid(in bidInput) domain.Bid {
	c := in.campaign
	score := TargetingScore(c, in.user, in.context)

	amount := c.BaseBid * (1 + 0.5*score)
	if c.TargetCPA > 0 && in.ctr > 0 && in.cvr > 0 {
		if ev := c.TargetCPA * in.cvr * in.ctr; amount > ev {
			amount = ev
		}
	}

	competitive := CompetitiveMultiplier(in.context.ResolveHour(in.now))
	amount *= in.pacing * competitive * in.incrementality

	return domain.Bid{
		CampaignID:               c.ID,
		CreativeID:               c.PrimaryCreative(),
		Amount:                   amount,
		QualityScore:             c.QualityScore,
		TargetingScore:           score,
		PredictedCTR:             in.ctr,
		PredictedCVR:             in.cvr,
		PacingMultiplier:         in.pacing,
		CompetitiveMultiplier:    competitive,
		IncrementalityMultiplier: in.incrementality,
	}
}
