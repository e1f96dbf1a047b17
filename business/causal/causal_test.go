//go:build !integration

package causal

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSegments map[string]float64

func (f fakeSegments) GetSegmentLift(ctx context.Context, campaignID, segment string) (float64, bool, error) {
	v, ok := f[campaignID+"|"+segment]
	return v, ok, nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(cfg Config, segments SegmentLiftRepository) (*Service, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	svc := NewService(
		kvstore.NewMemoryStore[domain.Experiment](),
		kvstore.NewMemoryStore[domain.IncrementalityReport](),
		kvstore.NewMemoryStore[domain.ExperimentGroup](),
		segments,
		cfg,
	)
	svc.SetClock(clock.Now)
	return svc, clock
}

func TestAssign_DeterministicAndProportional(t *testing.T) {
	control := 0
	const n = 20000
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("user-%d", i)
		g := Assign(u, "camp-1", 0.05)
		require.Equal(t, g, Assign(u, "camp-1", 0.05), "assignment must be stable")
		if g == domain.GroupControl {
			control++
		}
	}
	assert.InDelta(t, 0.05, float64(control)/n, 0.01)

	assert.Equal(t, domain.GroupTreatment, Assign("u", "c", 0))
	assert.Equal(t, domain.GroupControl, Assign("u", "c", 1))
}

func TestAssign_HashesUserColonCampaign(t *testing.T) {
	assert.Equal(t, "user-7:camp-1", assignmentKey("user-7", "camp-1"))
	for i := 0; i < 200; i++ {
		u := fmt.Sprintf("user-%d", i)
		want := domain.GroupTreatment
		if unitHash(u+":camp-1") < 0.3 {
			want = domain.GroupControl
		}
		assert.Equal(t, want, Assign(u, "camp-1", 0.3))
	}
}

func TestTwoProportionZTest_KnownExample(t *testing.T) {
	z, p := TwoProportionZTest(50, 1000, 80, 1000)
	assert.InDelta(t, 2.72, z, 0.01)
	assert.Less(t, p, 0.05)

	z, p = TwoProportionZTest(0, 0, 10, 100)
	assert.Zero(t, z)
	assert.Equal(t, 1.0, p)
}

func TestBuildReport_LiftAndSignificance(t *testing.T) {
	cfg := DefaultConfig()
	exp := domain.Experiment{
		ID:         "e1",
		CampaignID: "c1",
		Control:    domain.GroupStats{Impressions: 1000, Conversions: 50},
		Treatment:  domain.GroupStats{Impressions: 1000, Conversions: 80},
	}

	r := BuildReport(exp, cfg, time.Now())
	assert.InDelta(t, 0.05, r.ControlRate, 1e-12)
	assert.InDelta(t, 0.08, r.TreatmentRate, 1e-12)
	assert.InDelta(t, 0.6, r.IncrementalityRate, 1e-9)
	assert.True(t, r.Significant)
	assert.True(t, r.Reliable)
	assert.InDelta(t, 30, r.IncrementalConversions, 1e-9)
}

func TestBuildReport_ZeroControlRateHasNoLift(t *testing.T) {
	r := BuildReport(domain.Experiment{
		Control:   domain.GroupStats{Impressions: 500},
		Treatment: domain.GroupStats{Impressions: 500, Conversions: 5},
	}, DefaultConfig(), time.Now())
	assert.Zero(t, r.IncrementalityRate)
}

func TestIsGhost_FollowsAssignment(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ControlFraction = 0.5
	svc, _ := newTestService(cfg, nil)

	for i := 0; i < 100; i++ {
		u := fmt.Sprintf("user-%d", i)
		ghost, err := svc.IsGhost(ctx, u, "c1")
		require.NoError(t, err)
		assert.Equal(t, Assign(u, "c1", 0.5) == domain.GroupControl, ghost)
	}
}

func TestRecordImpression_CountsUsersOnce(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ControlFraction = 0
	svc, _ := newTestService(cfg, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RecordImpression(ctx, "u1", "c1", false))
	}
	require.NoError(t, svc.RecordImpression(ctx, "u2", "c1", false))
	require.NoError(t, svc.RecordConversion(ctx, "u1", "c1", 12.5))
	require.NoError(t, svc.RecordConversion(ctx, "stranger", "c1", 99))

	exp, err := svc.Experiment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.GroupStats{Users: 2, Impressions: 4, Conversions: 1, Revenue: 12.5}, exp.Treatment)
	assert.Equal(t, domain.GroupStats{}, exp.Control)
}

func TestEnsureExperiment_RotatesAndKeepsLastReport(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	svc, clock := newTestService(cfg, nil)

	first, err := svc.EnsureExperiment(ctx, "c1")
	require.NoError(t, err)

	again, err := svc.EnsureExperiment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	clock.now = clock.now.Add(cfg.ExperimentDuration)
	second, err := svc.EnsureExperiment(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Active(clock.now))

	last, found, err := svc.LastReport(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.ID, last.ExperimentID)
}

func TestComputeIncrementality_NoExperiment(t *testing.T) {
	svc, _ := newTestService(DefaultConfig(), nil)
	_, err := svc.ComputeIncrementality(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoExperiment)
}

func TestIncrementalityScore_BlendsAndClamps(t *testing.T) {
	ctx := context.Background()
	camp := domain.Campaign{ID: "c1"}
	uf := domain.UserFeatures{Segment: "s1"}

	svc, _ := newTestService(DefaultConfig(), nil)
	assert.Equal(t, 1.0, svc.IncrementalityScore(ctx, camp, uf), "no data is neutral")

	svc, _ = newTestService(DefaultConfig(), fakeSegments{"c1|s1": 0.5})
	assert.InDelta(t, 0.6*1+0.4*1.5, svc.IncrementalityScore(ctx, camp, uf), 1e-12)

	svc, _ = newTestService(DefaultConfig(), fakeSegments{"c1|s1": 100})
	assert.Equal(t, 2.0, svc.IncrementalityScore(ctx, camp, uf))

	svc, _ = newTestService(DefaultConfig(), fakeSegments{"c1|s1": -10})
	assert.Equal(t, 0.1, svc.IncrementalityScore(ctx, camp, uf))
}

func TestIncrementalityScore_UsesReliableExperiment(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	svc, _ := newTestService(cfg, nil)

	exp, err := svc.EnsureExperiment(ctx, "c1")
	require.NoError(t, err)
	exp.Control = domain.GroupStats{Impressions: 100, Conversions: 10}
	exp.Treatment = domain.GroupStats{Impressions: 100, Conversions: 15}
	_, err = kvstore.Update(ctx, svc.experiments, experimentKey("c1"), func(domain.Experiment, bool) (domain.Experiment, error) {
		return exp, nil
	})
	require.NoError(t, err)

	// lift 0.5 gives 0.6*1.5 + 0.4*1
	got := svc.IncrementalityScore(ctx, domain.Campaign{ID: "c1"}, domain.UserFeatures{})
	assert.InDelta(t, 1.3, got, 1e-12)
}

func TestEstimateIV_RecoversLATE(t *testing.T) {
	var obs []IVObservation
	// half of the assigned users comply; exposure adds 0.2 to the outcome
	for i := 0; i < 1000; i++ {
		assigned := i%2 == 0
		exposed := assigned && i%4 == 0
		outcome := 0.1
		if exposed {
			outcome += 0.2
		}
		obs = append(obs, IVObservation{Assigned: assigned, Exposed: exposed, Outcome: outcome})
	}

	est, err := EstimateIV(obs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, est.FirstStage, 1e-12)
	assert.InDelta(t, 0.1, est.ITT, 1e-12)
	assert.InDelta(t, 0.2, est.LATE, 1e-9)
}

func TestEstimateIV_WeakInstrument(t *testing.T) {
	obs := []IVObservation{
		{Assigned: true, Outcome: 1}, {Assigned: true},
		{Assigned: false, Outcome: 1}, {Assigned: false},
	}
	_, err := EstimateIV(obs)
	assert.ErrorIs(t, err, ErrWeakInstrument)
}

func TestEstimateSyntheticControl_RecoversWeightsAndEffect(t *testing.T) {
	const T, pre = 30, 20
	d1 := make([]float64, T)
	d2 := make([]float64, T)
	d3 := make([]float64, T)
	treated := make([]float64, T)
	for i := 0; i < T; i++ {
		ti := float64(i)
		d1[i] = 10 + math.Sin(ti)
		d2[i] = 5 + math.Cos(ti)
		d3[i] = 8 + math.Sin(ti/3)
		treated[i] = 0.3*d1[i] + 0.7*d2[i]
		if i >= pre {
			treated[i] += 5
		}
	}

	est, err := EstimateSyntheticControl(SyntheticControlInput{
		Treated:    treated,
		Donors:     map[string][]float64{"d1": d1, "d2": d2, "d3": d3},
		PrePeriods: pre,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.3, est.Weights["d1"], 1e-3)
	assert.InDelta(t, 0.7, est.Weights["d2"], 1e-3)
	assert.InDelta(t, 0.0, est.Weights["d3"], 1e-3)
	assert.InDelta(t, 5.0, est.ATT, 1e-2)
	assert.Less(t, est.PreRMSE, 1e-2)

	var sum float64
	for _, w := range est.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEstimateSyntheticControl_RejectsBadInput(t *testing.T) {
	_, err := EstimateSyntheticControl(SyntheticControlInput{Treated: []float64{1, 2}, PrePeriods: 1})
	assert.ErrorIs(t, err, ErrInsufficient)

	_, err = EstimateSyntheticControl(SyntheticControlInput{
		Treated:    []float64{1, 2, 3},
		Donors:     map[string][]float64{"d": {1, 2}},
		PrePeriods: 2,
	})
	assert.Error(t, err)
}
