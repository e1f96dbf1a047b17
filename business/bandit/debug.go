package bandit

import (
	"context"
	"fmt"
	"math"

	"adDecisioning/domain"
	"adDecisioning/pkg/logger"
)

// Debug returns the score components of each candidate for a context.
func (s *Service) Debug(ctx context.Context, bc Context, candidates []string) (domain.BanditDebug, error) {
	if err := ctx.Err(); err != nil {
		return domain.BanditDebug{}, fmt.Errorf("context error: %w", err)
	}

	cfg := s.config()
	st, err := s.bucket(ctx, bc.Bucket)
	if err != nil {
		return domain.BanditDebug{}, err
	}

	logger.Debug("bandit_debug",
		"trace_id", logger.TraceIDFromContext(ctx),
		"bucket", bc.Bucket,
		"candidates", len(candidates),
	)

	sc := scorerFor(cfg, s.rng.NormFloat64)
	out := domain.BanditDebug{
		Bucket:       bc.Bucket,
		Interactions: st.Interactions,
		Algorithm:    string(cfg.Algorithm),
		Arms:         make([]domain.BanditArmDebug, 0, len(candidates)),
	}

	bestScore := math.Inf(-1)
	for _, id := range candidates {
		arm, err := s.arm(ctx, bc.Bucket, id, len(bc.Vector))
		if err != nil {
			return domain.BanditDebug{}, err
		}
		score, err := sc.score(arm, bc.Vector, st.Interactions)
		if err != nil {
			score = math.NaN()
		}
		out.Arms = append(out.Arms, domain.BanditArmDebug{
			ArmID:       id,
			Plays:       arm.Plays,
			MeanReward:  arm.meanReward(),
			Mean:        arm.mean(bc.Vector),
			Uncertainty: sc.uncertainty(arm, bc.Vector, st.Interactions),
			Score:       jsonSafe(score),
		})
		if out.Selected == "" || score > bestScore {
			out.Selected, bestScore = id, score
		}
	}
	return out, nil
}

// jsonSafe maps scores that encoding/json cannot represent: an unplayed
// UCB1 arm reports the largest float, a failed sample reports zero.
func jsonSafe(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1), math.IsNaN(v):
		return 0
	}
	return v
}
