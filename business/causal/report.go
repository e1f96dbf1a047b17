package causal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/logger"
)

// BuildReport summarizes an experiment: conversion rates per group, the
// relative lift of treatment over control, and its significance.
func BuildReport(exp domain.Experiment, cfg Config, now time.Time) domain.IncrementalityReport {
	c, t := exp.Control, exp.Treatment
	cr, tr := c.ConversionRate(), t.ConversionRate()

	lift := 0.0
	if cr > 0 {
		lift = (tr - cr) / cr
	}
	z, p := TwoProportionZTest(c.Conversions, c.Impressions, t.Conversions, t.Impressions)

	revenuePerImpression := 0.0
	if c.Impressions > 0 {
		revenuePerImpression = c.Revenue / float64(c.Impressions)
	}

	return domain.IncrementalityReport{
		ExperimentID:           exp.ID,
		CampaignID:             exp.CampaignID,
		Control:                c,
		Treatment:              t,
		ControlRate:            cr,
		TreatmentRate:          tr,
		IncrementalityRate:     lift,
		ZScore:                 z,
		PValue:                 p,
		Significant:            p < 1-cfg.ConfidenceLevel,
		Reliable:               c.Impressions >= cfg.MinSamples && t.Impressions >= cfg.MinSamples,
		IncrementalConversions: (tr - cr) * float64(t.Impressions),
		IncrementalRevenue:     t.Revenue - revenuePerImpression*float64(t.Impressions),
		ComputedAt:             now,
	}
}

// ComputeIncrementality reports on the campaign's current experiment.
func (s *Service) ComputeIncrementality(ctx context.Context, campaignID string) (domain.IncrementalityReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.IncrementalityReport{}, fmt.Errorf("context error: %w", err)
	}
	exp, err := s.Experiment(ctx, campaignID)
	if err != nil {
		return domain.IncrementalityReport{}, err
	}
	report := BuildReport(exp, s.config(), s.now())

	logger.Debug("causal_report",
		"trace_id", logger.TraceIDFromContext(ctx),
		"campaign_id", campaignID,
		"incrementality_rate", report.IncrementalityRate,
		"p_value", report.PValue,
	)
	return report, nil
}

// LastReport returns the final report of the most recently retired
// experiment.
func (s *Service) LastReport(ctx context.Context, campaignID string) (domain.IncrementalityReport, bool, error) {
	v, found, err := s.reports.Get(ctx, reportKey(campaignID))
	if err != nil {
		return domain.IncrementalityReport{}, false, fmt.Errorf("load report %s: %w", campaignID, err)
	}
	return v.Value, found, nil
}

func usable(r domain.IncrementalityReport) bool {
	return r.Reliable && r.ControlRate > 0
}

// experimentScore is 1 + lift from the current experiment when it has
// enough data, else from the last retired one, else neutral.
func (s *Service) experimentScore(ctx context.Context, campaignID string) float64 {
	if v, ok := s.scoreCache.Get(campaignID); ok {
		return v
	}

	score := 1.0
	if current, err := s.ComputeIncrementality(ctx, campaignID); err == nil && usable(current) {
		score = 1 + current.IncrementalityRate
	} else if err != nil && !errors.Is(err, ErrNoExperiment) {
		logger.Warn("causal_score_current_failed", "campaign_id", campaignID, "error", err)
	} else if last, found, err := s.LastReport(ctx, campaignID); err == nil && found && usable(last) {
		score = 1 + last.IncrementalityRate
	}

	s.scoreCache.Add(campaignID, score)
	return score
}

// IncrementalityScore blends experiment and segment lift into a bid
// multiplier clamped to [0.1, 2.0]. Missing data counts as neutral.
func (s *Service) IncrementalityScore(ctx context.Context, campaign domain.Campaign, uf domain.UserFeatures) float64 {
	exp := s.experimentScore(ctx, campaign.ID)

	seg := s.segmentScore(ctx, campaign.ID, uf.SegmentKey())
	return clampScore(experimentWeight*exp + segmentWeight*seg)
}

func (s *Service) segmentScore(ctx context.Context, campaignID, segment string) float64 {
	if s.segments == nil {
		return 1.0
	}
	key := "seg:" + campaignID + "|" + segment
	if v, ok := s.scoreCache.Get(key); ok {
		return v
	}

	score := 1.0
	lift, found, err := s.segments.GetSegmentLift(ctx, campaignID, segment)
	switch {
	case err != nil:
		logger.Warn("causal_segment_lift_failed", "campaign_id", campaignID, "segment", segment, "error", err)
		return score
	case found:
		score = 1 + lift
	}
	s.scoreCache.Add(key, score)
	return score
}

func clampScore(v float64) float64 {
	switch {
	case v != v:
		return 1.0
	case v < minScore:
		return minScore
	case v > maxScore:
		return maxScore
	}
	return v
}
