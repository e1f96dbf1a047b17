package auction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"adDecisioning/business/bandit"
	"adDecisioning/business/pacing"
	"adDecisioning/domain"
	"adDecisioning/pkg/logger"
	"adDecisioning/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ---- Collaborator interfaces ----

type CampaignSource interface {
	Campaigns(ctx context.Context) ([]domain.Campaign, error)
}

type FrequencyCapper interface {
	Filter(ctx context.Context, campaigns []domain.Campaign, userID string) ([]domain.Campaign, error)
	Record(ctx context.Context, userID, campaignID string) error
}

type Explorer interface {
	BuildContext(u domain.UserFeatures, c domain.ContextFeatures, now time.Time) bandit.Context
	ShouldExplore(ctx context.Context, userID string, bc bandit.Context) (bandit.Decision, error)
	SelectArm(ctx context.Context, bucket string, x []float64, candidates []string) (string, error)
	Update(ctx context.Context, bucket, armID string, x []float64, reward float64) error
}

type IncrementalityMeasurer interface {
	IsGhost(ctx context.Context, userID, campaignID string) (bool, error)
	IncrementalityScore(ctx context.Context, campaign domain.Campaign, uf domain.UserFeatures) float64
	RecordImpression(ctx context.Context, userID, campaignID string, ghost bool) error
	RecordConversion(ctx context.Context, userID, campaignID string, value float64) error
}

type EventPublisher interface {
	Publish(events ...domain.Event)
}

// Dependencies wires the auction to its collaborators. Campaigns,
// Frequency and Pacing are required; the rest are optional.
type Dependencies struct {
	Campaigns CampaignSource
	Frequency FrequencyCapper
	Pacing    pacing.Oracle
	Explorer  Explorer
	Causal    IncrementalityMeasurer
	Predictor Predictor
	Publisher EventPublisher
}

type Service struct {
	deps      Dependencies
	decisions *decisionCache

	cfg atomic.Pointer[Config]
	now func() time.Time

	// tracks post-auction bookkeeping still in flight
	pending sync.WaitGroup
}

func NewService(deps Dependencies, cfg Config) *Service {
	if deps.Predictor == nil {
		deps.Predictor = PriorPredictor{}
	}
	s := &Service{
		deps:      deps,
		decisions: newDecisionCache(),
		now:       time.Now,
	}
	s.cfg.Store(&cfg)
	return s
}

func (s *Service) SetConfig(cfg Config) { s.cfg.Store(&cfg) }

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) config() Config { return *s.cfg.Load() }

// Drain waits for post-auction bookkeeping started so far.
func (s *Service) Drain() { s.pending.Wait() }

// settlement is the bookkeeping owed for a finished auction.
type settlement struct {
	userID   string
	winners  []domain.Winner
	ghosts   []string
	decision decision
}

type outcome struct {
	winners []domain.Winner
	settle  settlement
	err     error
}

// RunAuction decides which campaigns are shown to the user and what each
// pays. It never fails: a timeout or an unavailable dependency yields an
// empty result.
func (s *Service) RunAuction(ctx context.Context, req domain.AuctionRequest) []domain.Winner {
	started := time.Now()
	cfg := s.config()
	auctionID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, auctionID)

	ctx, span := telemetry.StartSpan(ctx, "auction.run", attribute.String("auction.id", auctionID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("auction panic: %v", r)}
			}
		}()
		winners, settle, err := s.decide(ctx, auctionID, req, cfg)
		done <- outcome{winners: winners, settle: settle, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		telemetry.RecordError(span, ctx.Err())
		auctionsRun.WithLabelValues("timeout").Inc()
		logger.Warn("auction_timeout",
			"auction_id", auctionID,
			"user_id", req.UserID,
			"timeout", cfg.Timeout,
		)
		return []domain.Winner{}
	}
	auctionLatency.Observe(time.Since(started).Seconds())

	if o.err != nil {
		telemetry.RecordError(span, o.err)
		auctionsRun.WithLabelValues("error").Inc()
		logger.Error("auction_failed", "auction_id", auctionID, "user_id", req.UserID, "error", o.err)
		return []domain.Winner{}
	}
	if len(o.winners) == 0 {
		auctionsRun.WithLabelValues("no_fill").Inc()
	} else {
		auctionsRun.WithLabelValues("filled").Inc()
	}

	span.SetAttributes(attribute.Int("auction.winners", len(o.winners)))
	s.decisions.put(auctionID, o.settle.decision)
	s.settle(o.settle)

	logger.Debug("auction_done",
		"auction_id", auctionID,
		"user_id", req.UserID,
		"winners", len(o.winners),
		"ghosts", len(o.settle.ghosts),
		"elapsed", time.Since(started),
	)
	return o.winners
}

func (s *Service) decide(ctx context.Context, auctionID string, req domain.AuctionRequest, cfg Config) ([]domain.Winner, settlement, error) {
	now := s.now()
	settle := settlement{userID: req.UserID, decision: decision{UserID: req.UserID}}

	all, err := s.deps.Campaigns.Campaigns(ctx)
	if err != nil {
		return nil, settle, err
	}

	eligible := make([]domain.Campaign, 0, len(all))
	for _, c := range all {
		if Matches(c, req.UserFeatures, req.ContextFeatures, now) {
			eligible = append(eligible, c)
		}
	}

	eligible, err = s.deps.Frequency.Filter(ctx, eligible, req.UserID)
	if err != nil {
		return nil, settle, fmt.Errorf("frequency caps: %w", err)
	}

	oracle := pacing.NewGuard(s.deps.Pacing, cfg.PacingTimeout)
	if paced, err := oracle.Filter(ctx, eligible); err != nil {
		logger.Warn("auction_pacing_filter_failed", "auction_id", auctionID, "error", err)
	} else {
		eligible = paced
	}

	ghost := make(map[string]bool)
	bids := make([]domain.Bid, 0, len(eligible))
	for _, c := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, settle, err
		}
		if s.deps.Causal != nil {
			g, err := s.deps.Causal.IsGhost(ctx, req.UserID, c.ID)
			if err != nil {
				logger.Warn("auction_ghost_check_failed", "auction_id", auctionID, "campaign_id", c.ID, "error", err)
			}
			ghost[c.ID] = g
		}
		if b, ok := s.bid(ctx, auctionID, c, req, now, oracle, cfg); ok {
			bids = append(bids, b)
		}
	}
	auctionCandidates.Observe(float64(len(bids)))

	// Control-group users never see the ad, but the slot it would have won
	// is logged as a ghost impression.
	full := rankBids(bids)
	ranked := make([]domain.Bid, 0, len(full))
	for i, b := range full {
		if !ghost[b.CampaignID] {
			ranked = append(ranked, b)
		} else if i < cfg.MaxWinners {
			settle.ghosts = append(settle.ghosts, b.CampaignID)
		}
	}

	explored := ""
	if s.deps.Explorer != nil {
		bc := s.deps.Explorer.BuildContext(req.UserFeatures, req.ContextFeatures, now)
		settle.decision.Bucket = bc.Bucket
		settle.decision.Vector = bc.Vector
		if cfg.BanditOverride && len(ranked) > 0 {
			ranked, explored = s.explore(ctx, auctionID, req.UserID, bc, ranked, cfg.MaxWinners)
		}
	}

	winners := priceGSP(ranked, cfg.MaxWinners, cfg.ReservePrice, auctionID)
	for i := range winners {
		if winners[i].CampaignID == explored {
			winners[i].Explored = true
		}
	}
	settle.winners = winners
	settle.decision.Winners = winners
	return winners, settle, nil
}

// bid prices one campaign, dropping it when below the floor or when its
// effective bid cannot meet the reserve.
func (s *Service) bid(ctx context.Context, auctionID string, c domain.Campaign, req domain.AuctionRequest, now time.Time, oracle pacing.Oracle, cfg Config) (domain.Bid, bool) {
	ctr, cvr := s.deps.Predictor.Predict(ctx, c, req.UserFeatures, req.ContextFeatures)

	multiplier, err := oracle.Multiplier(ctx, c.ID)
	if err != nil {
		logger.Warn("auction_pacing_multiplier_failed", "auction_id", auctionID, "campaign_id", c.ID, "error", err)
		multiplier = 1.0
	}

	incrementality := 1.0
	if s.deps.Causal != nil {
		incrementality = s.deps.Causal.IncrementalityScore(ctx, c, req.UserFeatures)
	}

	b := computeBid(bidInput{
		campaign:       c,
		user:           req.UserFeatures,
		context:        req.ContextFeatures,
		now:            now,
		ctr:            ctr,
		cvr:            cvr,
		pacing:         multiplier,
		incrementality: incrementality,
	})
	if b.Amount < cfg.BidFloor || b.EffectiveBid() < cfg.ReservePrice {
		return domain.Bid{}, false
	}
	return b, true
}

// explore lets the bandit pick a candidate when it decides to explore. A
// pick outside the winning positions is moved into the last one.
func (s *Service) explore(ctx context.Context, auctionID, userID string, bc bandit.Context, ranked []domain.Bid, maxWinners int) ([]domain.Bid, string) {
	d, err := s.deps.Explorer.ShouldExplore(ctx, userID, bc)
	if err != nil {
		logger.Warn("auction_explore_failed", "auction_id", auctionID, "error", err)
		return ranked, ""
	}
	if !d.Explore {
		return ranked, ""
	}

	ids := make([]string, len(ranked))
	for i, b := range ranked {
		ids[i] = b.CampaignID
	}
	arm, err := s.deps.Explorer.SelectArm(ctx, bc.Bucket, bc.Vector, ids)
	if err != nil || arm == "" {
		if err != nil {
			logger.Warn("auction_select_arm_failed", "auction_id", auctionID, "error", err)
		}
		return ranked, ""
	}

	for i, id := range ids {
		if id == arm {
			return promote(ranked, i, maxWinners), arm
		}
	}
	return ranked, ""
}

// settle books spend, frequency and experiment counts for the winners that
// were returned, plus ghost impressions, in the background.
func (s *Service) settle(st settlement) {
	if len(st.winners) == 0 && len(st.ghosts) == 0 {
		return
	}
	oracle := pacing.NewGuard(s.deps.Pacing, postAuctionTimeout)
	now := s.now()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), postAuctionTimeout)
		defer cancel()

		events := make([]domain.Event, 0, len(st.winners))
		for _, w := range st.winners {
			if err := s.deps.Frequency.Record(ctx, st.userID, w.CampaignID); err != nil {
				logger.Error("auction_frequency_record_failed", "campaign_id", w.CampaignID, "user_id", st.userID, "error", err)
			}
			if err := oracle.RecordSpend(ctx, w.CampaignID, w.ClearingPrice); err != nil {
				logger.Error("auction_record_spend_failed", "campaign_id", w.CampaignID, "amount", w.ClearingPrice, "error", err)
			}
			if s.deps.Causal != nil {
				if err := s.deps.Causal.RecordImpression(ctx, st.userID, w.CampaignID, false); err != nil {
					logger.Warn("auction_causal_impression_failed", "campaign_id", w.CampaignID, "error", err)
				}
			}
			auctionSpend.Add(w.ClearingPrice)

			events = append(events, domain.AuctionEvent{
				EventID:       uuid.NewString(),
				AuctionID:     w.AuctionID,
				UserID:        st.userID,
				CampaignID:    w.CampaignID,
				CreativeID:    w.CreativeID,
				Position:      w.Position,
				BidAmount:     w.BidAmount,
				EffectiveBid:  w.EffectiveBid,
				ClearingPrice: w.ClearingPrice,
				QualityScore:  w.QualityScore,
				PredictedCTR:  w.PredictedCTR,
				PredictedCVR:  w.PredictedCVR,
				Explored:      w.Explored,
				CreatedAt:     now,
			})
		}

		if s.deps.Causal != nil {
			for _, id := range st.ghosts {
				if err := s.deps.Causal.RecordImpression(ctx, st.userID, id, true); err != nil {
					logger.Warn("auction_ghost_impression_failed", "campaign_id", id, "error", err)
				}
			}
		}

		if s.deps.Publisher != nil && len(events) > 0 {
			s.deps.Publisher.Publish(events...)
		}
	}()
}
