package auction

import (
	"context"
	"errors"
	"fmt"

	"adDecisioning/business/bandit"
	"adDecisioning/domain"
	"adDecisioning/pkg/cache"
	"adDecisioning/pkg/logger"
)

var (
	ErrUnknownAuction = errors.New("auction: unknown or expired auction id")
	ErrNotServed      = errors.New("auction: campaign was not a winner of this auction")
	ErrNoMeasurement  = errors.New("auction: incrementality measurement disabled")
)

// RecordFeedback credits the bandit arm of a served campaign with the
// reward of an impression, click or conversion.
func (s *Service) RecordFeedback(ctx context.Context, fb domain.AuctionFeedback) error {
	d, ok := s.decisions.get(fb.AuctionID)
	if !ok {
		return fmt.Errorf("%s: %w", fb.AuctionID, ErrUnknownAuction)
	}
	if !d.served(fb.CampaignID) {
		return fmt.Errorf("%s/%s: %w", fb.AuctionID, fb.CampaignID, ErrNotServed)
	}

	reward, err := bandit.RewardFor(fb.Kind, fb.Value)
	if err != nil {
		return err
	}
	if s.deps.Explorer == nil || d.Bucket == "" {
		logger.Debug("auction_feedback_without_bandit", "auction_id", fb.AuctionID)
		return nil
	}
	if err := s.deps.Explorer.Update(ctx, d.Bucket, fb.CampaignID, d.Vector, reward); err != nil {
		return fmt.Errorf("bandit update: %w", err)
	}

	logger.Debug("auction_feedback_recorded",
		"trace_id", logger.TraceIDFromContext(ctx),
		"auction_id", fb.AuctionID,
		"campaign_id", fb.CampaignID,
		"kind", fb.Kind,
		"reward", reward,
	)
	return nil
}

// RecordConversion attributes a conversion to the campaign's running
// experiment.
func (s *Service) RecordConversion(ctx context.Context, conv domain.Conversion) error {
	if s.deps.Causal == nil {
		return ErrNoMeasurement
	}
	return s.deps.Causal.RecordConversion(ctx, conv.UserID, conv.CampaignID, conv.Value)
}

// DecisionCacheStats exposes hit counters of the auction decision cache.
func (s *Service) DecisionCacheStats() cache.Stats { return s.decisions.stats() }
