//go:build !integration

package bandit

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"adDecisioning/pkg/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestService(cfg Config) *Service {
	svc := NewService(kvstore.NewMemoryStore[*ArmState](), kvstore.NewMemoryStore[BucketState](), nil, cfg)
	svc.Seed(42)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) })
	return svc
}

func randomUnitVector(r *rand.Rand, d int) []float64 {
	x := make([]float64, d)
	for i := range x {
		x[i] = r.NormFloat64()
	}
	normalize(x)
	return x
}

func TestUpdate_MatchesRidgeRegression(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RefactorEvery = 7
	svc := newTestService(cfg)

	const d, n = 8, 60
	r := rand.New(rand.NewPCG(1, 2))
	X := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x := randomUnitVector(r, d)
		reward := r.Float64()
		X.SetRow(i, x)
		y.SetVec(i, reward)
		require.NoError(t, svc.Update(ctx, "b1", "arm", x, reward))
	}

	// reference: θ = (I + XᵀX)⁻¹ Xᵀ y
	var gram mat.Dense
	gram.Mul(X.T(), X)
	for i := 0; i < d; i++ {
		gram.Set(i, i, gram.At(i, i)+1)
	}
	var rhs mat.VecDense
	rhs.MulVec(X.T(), y)
	var want mat.VecDense
	require.NoError(t, want.SolveVec(&gram, &rhs))

	arm, found, err := svc.Arm(ctx, "b1", "arm")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(n), arm.Plays)
	for i := 0; i < d; i++ {
		assert.InDelta(t, want.AtVec(i), arm.Theta[i], 1e-6, "theta[%d]", i)
	}

	// the maintained inverse really is the inverse of A
	var prod mat.Dense
	prod.Mul(arm.aSym(), arm.aInvSym())
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-8)
		}
	}
}

func TestShouldExplore_WarmupForcesExploration(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	svc := newTestService(cfg)
	bc := Context{Vector: randomUnitVector(rand.New(rand.NewPCG(3, 4)), 8), Bucket: "warm"}

	for i := int64(0); i < cfg.WarmupThreshold; i++ {
		d, err := svc.ShouldExplore(ctx, "u1", bc)
		require.NoError(t, err)
		require.True(t, d.Explore, "interaction %d is inside warm-up", i)
		require.True(t, d.Warmup)
		require.NoError(t, svc.Update(ctx, bc.Bucket, "a", bc.Vector, 1))
	}

	d, err := svc.ShouldExplore(ctx, "u1", bc)
	require.NoError(t, err)
	assert.False(t, d.Warmup)
	assert.LessOrEqual(t, d.Rate, cfg.MaxExploreRate)
}

func TestShouldExplore_RateIsCapped(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.WarmupThreshold = 1
	cfg.Alpha = 10
	cfg.MaxExploreRate = 0.3
	svc := newTestService(cfg)
	x := randomUnitVector(rand.New(rand.NewPCG(5, 6)), 8)

	require.NoError(t, svc.Update(ctx, "b", "a", x, 0))
	d, err := svc.ShouldExplore(ctx, "u1", Context{Vector: x, Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, 0.3, d.Rate)
}

func TestUpdate_DegenerateInputIsSkipped(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(DefaultConfig())
	x := []float64{1, 0, 0}

	require.NoError(t, svc.Update(ctx, "b", "a", x, 1))
	before, _, _ := svc.Arm(ctx, "b", "a")

	require.NoError(t, svc.Update(ctx, "b", "a", x, math.NaN()))
	require.NoError(t, svc.Update(ctx, "b", "a", []float64{math.Inf(1), 0, 0}, 1))

	after, _, _ := svc.Arm(ctx, "b", "a")
	assert.Equal(t, before.Theta, after.Theta)
	assert.Equal(t, before.Plays, after.Plays)

	st, err := svc.Bucket(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Interactions, "skipped updates are not counted")
}

func TestSelectArm_LinUCBTiesKeepFirstCandidate(t *testing.T) {
	svc := newTestService(DefaultConfig())
	x := randomUnitVector(rand.New(rand.NewPCG(7, 8)), 8)

	got, err := svc.SelectArm(context.Background(), "fresh", x, []string{"c2", "c1", "c3"})
	require.NoError(t, err)
	assert.Equal(t, "c2", got)
}

func TestSelectArm_LinUCBLearnsBetterArm(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Alpha = 0.1
	svc := newTestService(cfg)
	x := randomUnitVector(rand.New(rand.NewPCG(9, 10)), 8)

	for i := 0; i < 30; i++ {
		require.NoError(t, svc.Update(ctx, "b", "bad", x, 0))
		require.NoError(t, svc.Update(ctx, "b", "good", x, 1))
	}

	got, err := svc.SelectArm(ctx, "b", x, []string{"bad", "good"})
	require.NoError(t, err)
	assert.Equal(t, "good", got)
}

func TestSelectArm_UCB1PlaysUnplayedArmsFirst(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmUCB1
	svc := newTestService(cfg)
	x := []float64{1, 0}

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.Update(ctx, "b", "played", x, 1))
	}

	got, err := svc.SelectArm(ctx, "b", x, []string{"played", "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestSelectArm_ThompsonFavoursBetterArm(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmThompson
	svc := newTestService(cfg)
	x := randomUnitVector(rand.New(rand.NewPCG(11, 12)), 8)

	for i := 0; i < 200; i++ {
		require.NoError(t, svc.Update(ctx, "b", "bad", x, 0))
		require.NoError(t, svc.Update(ctx, "b", "good", x, 1))
	}

	wins := 0
	for i := 0; i < 100; i++ {
		got, err := svc.SelectArm(ctx, "b", x, []string{"bad", "good"})
		require.NoError(t, err)
		if got == "good" {
			wins++
		}
	}
	assert.Greater(t, wins, 90)
}

func TestUpdate_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(DefaultConfig())
	x := []float64{0.6, 0.8, 0}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := svc.Update(ctx, "b", "a", x, 1); err != nil {
					t.Errorf("update: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	arm, _, err := svc.Arm(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(200), arm.Plays)

	st, _ := svc.Bucket(ctx, "b")
	assert.Equal(t, int64(200), st.Interactions)
}

type memoryCheckpoints struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func (m *memoryCheckpoints) SaveCheckpoint(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = make(map[string]Snapshot)
	}
	m.snaps[snap.Bucket.Bucket] = snap
	return nil
}

func (m *memoryCheckpoints) LoadCheckpoints(ctx context.Context) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out, nil
}

func TestCheckpoint_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := &memoryCheckpoints{}
	cfg := DefaultConfig()
	x := []float64{0.6, 0.8}

	src := NewService(kvstore.NewMemoryStore[*ArmState](), kvstore.NewMemoryStore[BucketState](), repo, cfg)
	require.NoError(t, src.Update(ctx, "b", "a", x, 1))
	require.NoError(t, src.Update(ctx, "b", "c", x, 0))

	n, err := src.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dst := NewService(kvstore.NewMemoryStore[*ArmState](), kvstore.NewMemoryStore[BucketState](), repo, cfg)
	n, err = dst.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want, _, _ := src.Arm(ctx, "b", "a")
	got, found, err := dst.Arm(ctx, "b", "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.Theta, got.Theta)

	st, _ := dst.Bucket(ctx, "b")
	assert.Equal(t, int64(2), st.Interactions)

	n, err = dst.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "live buckets are not overwritten")
}

func TestCheckpoint_CapsArmsPerBucket(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxArmsPerBucket = 2
	svc := NewService(kvstore.NewMemoryStore[*ArmState](), kvstore.NewMemoryStore[BucketState](), &memoryCheckpoints{}, cfg)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	x := []float64{1, 0}

	for _, id := range []string{"old", "mid", "new"} {
		require.NoError(t, svc.Update(ctx, "b", id, x, 1))
		now = now.Add(time.Minute)
	}

	_, err := svc.Checkpoint(ctx)
	require.NoError(t, err)

	st, _ := svc.Bucket(ctx, "b")
	assert.Equal(t, []string{"mid", "new"}, st.Arms)
	_, found, _ := svc.Arm(ctx, "b", "old")
	assert.False(t, found)
}

func TestRunCheckpointer_PicksUpNewInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := &memoryCheckpoints{}
	cfg := DefaultConfig()
	cfg.CheckpointInterval = time.Hour

	svc := NewService(kvstore.NewMemoryStore[*ArmState](), kvstore.NewMemoryStore[BucketState](), repo, cfg)
	require.NoError(t, svc.Update(ctx, "b", "a", []float64{0.6, 0.8}, 1))

	done := make(chan error, 1)
	go func() { done <- svc.RunCheckpointer(ctx) }()

	cfg.CheckpointInterval = 10 * time.Millisecond
	svc.SetConfig(cfg)
	assert.Eventually(t, func() bool {
		snaps, _ := repo.LoadCheckpoints(ctx)
		return len(snaps) == 1
	}, 2*time.Second, 10*time.Millisecond, "checkpoint taken on the shorter interval")

	cancel()
	require.NoError(t, <-done)
}
