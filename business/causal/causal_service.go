package causal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrNoExperiment = errors.New("causal: no experiment for campaign")

	errUnchanged = errors.New("causal: unchanged")
	errStale     = errors.New("causal: experiment rotated")
)

const (
	experimentPrefix = "causal:exp:"
	reportPrefix     = "causal:report:"
	userPrefix       = "causal:user:"
)

func experimentKey(campaignID string) string { return experimentPrefix + campaignID }

func reportKey(campaignID string) string { return reportPrefix + campaignID }

func userKey(experimentID, userID string) string {
	return userPrefix + experimentID + ":" + userID
}

// ---- Repository interfaces ----

// SegmentLiftRepository returns the relative lift measured offline for a
// campaign within a user segment.
type SegmentLiftRepository interface {
	GetSegmentLift(ctx context.Context, campaignID, segment string) (float64, bool, error)
}

type EventPublisher interface {
	Publish(events ...domain.Event)
}

type Service struct {
	experiments kvstore.Store[domain.Experiment]
	reports     kvstore.Store[domain.IncrementalityReport]
	users       kvstore.Store[domain.ExperimentGroup]
	segments    SegmentLiftRepository
	publisher   EventPublisher

	expCache   *expirable.LRU[string, domain.Experiment]
	scoreCache *expirable.LRU[string, float64]

	cfg atomic.Pointer[Config]
	now func() time.Time
}

func NewService(
	experiments kvstore.Store[domain.Experiment],
	reports kvstore.Store[domain.IncrementalityReport],
	users kvstore.Store[domain.ExperimentGroup],
	segments SegmentLiftRepository,
	cfg Config,
) *Service {
	s := &Service{
		experiments: experiments,
		reports:     reports,
		users:       users,
		segments:    segments,
		expCache:    expirable.NewLRU[string, domain.Experiment](cacheSize, nil, experimentCacheTTL),
		scoreCache:  expirable.NewLRU[string, float64](cacheSize, nil, scoreCacheTTL),
		now:         time.Now,
	}
	s.cfg.Store(&cfg)
	return s
}

// SetConfig applies to experiments created afterwards; running experiments
// keep the control fraction they started with.
func (s *Service) SetConfig(cfg Config) { s.cfg.Store(&cfg) }

func (s *Service) SetPublisher(p EventPublisher) { s.publisher = p }

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) config() Config { return *s.cfg.Load() }

func (s *Service) newExperiment(campaignID string, now time.Time) domain.Experiment {
	cfg := s.config()
	return domain.Experiment{
		ID:              uuid.NewString(),
		CampaignID:      campaignID,
		StartAt:         now,
		EndAt:           now.Add(cfg.ExperimentDuration),
		ControlFraction: cfg.ControlFraction,
	}
}

// EnsureExperiment returns the campaign's active experiment, creating it on
// first use and rotating it once it has run its course. The final report
// of a rotated experiment is kept as the campaign's latest result.
func (s *Service) EnsureExperiment(ctx context.Context, campaignID string) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	now := s.now()
	var existing domain.Experiment
	var retired *domain.Experiment

	exp, err := kvstore.Update(ctx, s.experiments, experimentKey(campaignID), func(cur domain.Experiment, found bool) (domain.Experiment, error) {
		retired = nil
		if found && cur.Active(now) {
			existing = cur
			return cur, errUnchanged
		}
		if found {
			old := cur
			retired = &old
		}
		return s.newExperiment(campaignID, now), nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		s.expCache.Add(campaignID, existing)
		return existing, nil
	case err != nil:
		return domain.Experiment{}, fmt.Errorf("ensure experiment %s: %w", campaignID, err)
	}

	s.expCache.Add(campaignID, exp)
	s.scoreCache.Remove(campaignID)

	if retired != nil {
		report := BuildReport(*retired, s.config(), now)
		if _, err := kvstore.Update(ctx, s.reports, reportKey(campaignID), func(domain.IncrementalityReport, bool) (domain.IncrementalityReport, error) {
			return report, nil
		}); err != nil {
			logger.Error("causal_archive_report_failed", "campaign_id", campaignID, "error", err)
		}
		experimentsRotated.Inc()
		logger.Info("causal_experiment_rotated",
			"campaign_id", campaignID,
			"retired_id", retired.ID,
			"experiment_id", exp.ID,
			"incrementality_rate", report.IncrementalityRate,
		)
	} else {
		logger.Info("causal_experiment_created", "campaign_id", campaignID, "experiment_id", exp.ID)
	}
	return exp, nil
}

// Experiment returns the stored experiment without creating one.
func (s *Service) Experiment(ctx context.Context, campaignID string) (domain.Experiment, error) {
	v, found, err := s.experiments.Get(ctx, experimentKey(campaignID))
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("load experiment %s: %w", campaignID, err)
	}
	if !found {
		return domain.Experiment{}, fmt.Errorf("%s: %w", campaignID, ErrNoExperiment)
	}
	return v.Value, nil
}

// activeExperiment reads through a short-lived cache since it is consulted
// for every candidate of every auction.
func (s *Service) activeExperiment(ctx context.Context, campaignID string) (domain.Experiment, error) {
	if exp, ok := s.expCache.Get(campaignID); ok && exp.Active(s.now()) {
		return exp, nil
	}
	return s.EnsureExperiment(ctx, campaignID)
}

// IsGhost reports whether the user belongs to the campaign's control group,
// in which case the ad must be withheld and logged as a ghost impression.
func (s *Service) IsGhost(ctx context.Context, userID, campaignID string) (bool, error) {
	exp, err := s.activeExperiment(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return Assign(userID, campaignID, exp.ControlFraction) == domain.GroupControl, nil
}

// RecordImpression counts a served (treatment) or ghost (control)
// impression against the running experiment.
func (s *Service) RecordImpression(ctx context.Context, userID, campaignID string, ghost bool) error {
	exp, err := s.activeExperiment(ctx, campaignID)
	if err != nil {
		return err
	}
	group := Assign(userID, campaignID, exp.ControlFraction)
	if ghost != (group == domain.GroupControl) {
		logger.Warn("causal_group_mismatch",
			"campaign_id", campaignID,
			"user_id", userID,
			"group", group,
			"ghost", ghost,
		)
	}

	firstSeen, err := kvstore.CreateIfAbsent(ctx, s.users, userKey(exp.ID, userID), group)
	if err != nil {
		return fmt.Errorf("track experiment user: %w", err)
	}

	err = s.bump(ctx, campaignID, exp.ID, func(e *domain.Experiment) {
		g := e.Group(group)
		g.Impressions++
		if firstSeen {
			g.Users++
		}
	})
	if err != nil {
		return err
	}

	causalImpressions.WithLabelValues(string(group)).Inc()
	s.publish(domain.CausalEvent{
		EventID:      uuid.NewString(),
		ExperimentID: exp.ID,
		CampaignID:   campaignID,
		UserID:       userID,
		Group:        group,
		Kind:         domain.CausalImpression,
		Ghost:        ghost,
		CreatedAt:    s.now(),
	})
	return nil
}

// RecordConversion attributes a conversion to the user's group. Users who
// never had a real or ghost impression in the running experiment are not
// attributed.
func (s *Service) RecordConversion(ctx context.Context, userID, campaignID string, value float64) error {
	exp, err := s.activeExperiment(ctx, campaignID)
	if err != nil {
		return err
	}

	v, found, err := s.users.Get(ctx, userKey(exp.ID, userID))
	if err != nil {
		return fmt.Errorf("load experiment user: %w", err)
	}
	if !found {
		causalConversions.WithLabelValues("unattributed").Inc()
		return nil
	}
	group := v.Value

	err = s.bump(ctx, campaignID, exp.ID, func(e *domain.Experiment) {
		g := e.Group(group)
		g.Conversions++
		g.Revenue += value
	})
	if err != nil {
		return err
	}

	causalConversions.WithLabelValues(string(group)).Inc()
	s.publish(domain.CausalEvent{
		EventID:      uuid.NewString(),
		ExperimentID: exp.ID,
		CampaignID:   campaignID,
		UserID:       userID,
		Group:        group,
		Kind:         domain.CausalConversion,
		Value:        value,
		CreatedAt:    s.now(),
	})
	return nil
}

// bump applies fn to the stored experiment if it is still experimentID.
// Counts for an experiment that rotated in the meantime are dropped.
func (s *Service) bump(ctx context.Context, campaignID, experimentID string, fn func(*domain.Experiment)) error {
	_, err := kvstore.Update(ctx, s.experiments, experimentKey(campaignID), func(cur domain.Experiment, found bool) (domain.Experiment, error) {
		if !found || cur.ID != experimentID {
			return cur, errStale
		}
		next := cur
		fn(&next)
		return next, nil
	})
	if errors.Is(err, errStale) {
		logger.Debug("causal_stale_experiment", "campaign_id", campaignID, "experiment_id", experimentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update experiment %s: %w", campaignID, err)
	}
	return nil
}

func (s *Service) publish(ev domain.CausalEvent) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
