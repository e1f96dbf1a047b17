package bandit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"

	"github.com/google/uuid"
)

const (
	armPrefix    = "bandit:arm:"
	bucketPrefix = "bandit:bucket:"
)

func armKey(bucket, armID string) string {
	return armPrefix + bucket + ":" + armID
}

func bucketKey(bucket string) string {
	return bucketPrefix + bucket
}

// ---- Repository interfaces ----

// CheckpointRepository persists bucket snapshots so learned state survives
// restarts.
type CheckpointRepository interface {
	SaveCheckpoint(ctx context.Context, snap Snapshot) error
	LoadCheckpoints(ctx context.Context) ([]Snapshot, error)
}

type EventPublisher interface {
	Publish(events ...domain.Event)
}

// Decision is the outcome of ShouldExplore.
type Decision struct {
	Explore bool    `json:"explore"`
	Warmup  bool    `json:"warmup"`
	Rate    float64 `json:"rate"`
	Bucket  string  `json:"bucket"`
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed uint64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.NormFloat64()
}

type Service struct {
	arms        kvstore.Store[*ArmState]
	buckets     kvstore.Store[BucketState]
	checkpoints CheckpointRepository
	publisher   EventPublisher

	cfg atomic.Pointer[Config]
	rng *lockedRand
	now func() time.Time

	// signals RunCheckpointer that the interval may have changed
	reload chan struct{}
}

func NewService(
	arms kvstore.Store[*ArmState],
	buckets kvstore.Store[BucketState],
	checkpoints CheckpointRepository,
	cfg Config,
) *Service {
	s := &Service{
		arms:        arms,
		buckets:     buckets,
		checkpoints: checkpoints,
		rng:         newLockedRand(uint64(time.Now().UnixNano())),
		now:         time.Now,
		reload:      make(chan struct{}, 1),
	}
	s.cfg.Store(&cfg)
	return s
}

func (s *Service) SetConfig(cfg Config) {
	s.cfg.Store(&cfg)
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Service) SetPublisher(p EventPublisher) { s.publisher = p }

// Seed makes exploration draws and Thompson samples reproducible.
func (s *Service) Seed(seed uint64) { s.rng = newLockedRand(seed) }

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) config() Config { return *s.cfg.Load() }

func (s *Service) BuildContext(u domain.UserFeatures, c domain.ContextFeatures, now time.Time) Context {
	return BuildContext(u, c, now, s.config())
}

func (s *Service) bucket(ctx context.Context, bucket string) (BucketState, error) {
	v, found, err := s.buckets.Get(ctx, bucketKey(bucket))
	if err != nil {
		return BucketState{}, fmt.Errorf("load bucket %s: %w", bucket, err)
	}
	if !found {
		return BucketState{Bucket: bucket}, nil
	}
	return v.Value, nil
}

// arm returns the stored arm or a fresh prior when it is missing or was
// trained on a different dimension.
func (s *Service) arm(ctx context.Context, bucket, armID string, dim int) (*ArmState, error) {
	v, found, err := s.arms.Get(ctx, armKey(bucket, armID))
	if err != nil {
		return nil, fmt.Errorf("load arm %s: %w", armID, err)
	}
	if !found || v.Value == nil || v.Value.Dim != dim {
		return newArmState(armID, dim, s.now()), nil
	}
	return v.Value, nil
}

// ShouldExplore forces exploration while the bucket is warming up and
// afterwards explores with a rate proportional to the average uncertainty
// of the bucket's recent arms.
func (s *Service) ShouldExplore(ctx context.Context, userID string, bc Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("context error: %w", err)
	}

	cfg := s.config()
	st, err := s.bucket(ctx, bc.Bucket)
	if err != nil {
		return Decision{}, err
	}

	if st.Interactions < cfg.WarmupThreshold {
		banditDecisions.WithLabelValues("warmup").Inc()
		return Decision{Explore: true, Warmup: true, Rate: 1, Bucket: bc.Bucket}, nil
	}

	sc := scorerFor(cfg, s.rng.NormFloat64)
	var sum float64
	arms := st.recentArms(uncertaintySampleArms)
	for _, id := range arms {
		arm, err := s.arm(ctx, bc.Bucket, id, len(bc.Vector))
		if err != nil {
			return Decision{}, err
		}
		sum += sc.uncertainty(arm, bc.Vector, st.Interactions)
	}

	rate := 0.0
	if len(arms) > 0 {
		rate = cfg.Alpha * sum / float64(len(arms))
	}
	if rate > cfg.MaxExploreRate {
		rate = cfg.MaxExploreRate
	}

	d := Decision{Rate: rate, Bucket: bc.Bucket, Explore: s.rng.Float64() < rate}
	if d.Explore {
		banditDecisions.WithLabelValues("explore").Inc()
	} else {
		banditDecisions.WithLabelValues("exploit").Inc()
	}

	logger.Debug("bandit_should_explore",
		"trace_id", logger.TraceIDFromContext(ctx),
		"user_id", userID,
		"bucket", bc.Bucket,
		"interactions", st.Interactions,
		"rate", rate,
		"explore", d.Explore,
	)
	return d, nil
}

// SelectArm returns the best-scoring candidate under the configured
// algorithm. Ties keep the earliest candidate.
func (s *Service) SelectArm(ctx context.Context, bucket string, x []float64, candidates []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}
	if len(candidates) == 0 {
		return "", nil
	}

	cfg := s.config()
	st, err := s.bucket(ctx, bucket)
	if err != nil {
		return "", err
	}
	sc := scorerFor(cfg, s.rng.NormFloat64)

	best := ""
	bestScore := 0.0
	for _, id := range candidates {
		arm, err := s.arm(ctx, bucket, id, len(x))
		if err != nil {
			return "", err
		}
		score, err := sc.score(arm, x, st.Interactions)
		if err != nil {
			logger.Warn("bandit_score_failed", "bucket", bucket, "arm_id", id, "error", err)
			continue
		}
		if best == "" || score > bestScore {
			best, bestScore = id, score
		}
	}

	if best == "" {
		best = candidates[0]
	}
	return best, nil
}

// Update folds a reward into the arm and counts the interaction for the
// bucket. Degenerate updates are skipped and logged.
func (s *Service) Update(ctx context.Context, bucket, armID string, x []float64, reward float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	cfg := s.config()
	now := s.now()

	_, err := kvstore.Update(ctx, s.arms, armKey(bucket, armID), func(cur *ArmState, found bool) (*ArmState, error) {
		var next *ArmState
		if !found || cur == nil || cur.Dim != len(x) {
			next = newArmState(armID, len(x), now)
		} else {
			next = cur.clone()
		}
		if err := next.observe(x, reward, cfg.RefactorEvery); err != nil {
			return nil, err
		}
		next.LastUpdated = now
		return next, nil
	})
	if errors.Is(err, ErrDegenerate) {
		banditUpdates.WithLabelValues("skipped").Inc()
		logger.Warn("bandit_update_skipped",
			"trace_id", logger.TraceIDFromContext(ctx),
			"bucket", bucket,
			"arm_id", armID,
			"reward", reward,
			"reason", err.Error(),
		)
		s.publish(bucket, armID, reward, false, err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("update arm %s: %w", armID, err)
	}

	_, err = kvstore.Update(ctx, s.buckets, bucketKey(bucket), func(cur BucketState, _ bool) (BucketState, error) {
		next := cur.clone()
		next.Bucket = bucket
		next.Interactions++
		next.LastUpdated = now
		next.touch(armID)
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("update bucket %s: %w", bucket, err)
	}

	banditUpdates.WithLabelValues("applied").Inc()
	logger.Debug("bandit_update",
		"trace_id", logger.TraceIDFromContext(ctx),
		"bucket", bucket,
		"arm_id", armID,
		"reward", reward,
	)
	s.publish(bucket, armID, reward, true, "")
	return nil
}

func (s *Service) publish(bucket, armID string, reward float64, applied bool, reason string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(domain.BanditUpdateEvent{
		EventID:   uuid.NewString(),
		Bucket:    bucket,
		ArmID:     armID,
		Reward:    reward,
		Applied:   applied,
		Reason:    reason,
		CreatedAt: s.now(),
	})
}

// Arm exposes a copy of the stored arm state.
func (s *Service) Arm(ctx context.Context, bucket, armID string) (*ArmState, bool, error) {
	v, found, err := s.arms.Get(ctx, armKey(bucket, armID))
	if err != nil || !found || v.Value == nil {
		return nil, false, err
	}
	return v.Value.clone(), true, nil
}

func (s *Service) Bucket(ctx context.Context, bucket string) (BucketState, error) {
	st, err := s.bucket(ctx, bucket)
	if err != nil {
		return BucketState{}, err
	}
	return st.clone(), nil
}
