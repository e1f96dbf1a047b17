//go:build !integration

package frequency

import (
	"context"
	"sync"
	"testing"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/kvstore"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(caps Caps) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc := NewService(kvstore.NewMemoryLog[domain.FrequencyRecord](), Config{Defaults: caps, SweepInterval: time.Minute})
	svc.SetClock(clock.Now)
	return svc, clock
}

func TestFilter_HourlyCapBlocksUntilOldestAgesOut(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(Caps{PerHour: 3, PerDay: 100, PerWeek: 100, PerCampaignPerDay: 100})
	camp := domain.Campaign{ID: "c1"}

	for i := 0; i < 3; i++ {
		ok, err := svc.Eligible(ctx, "u1", camp)
		require.NoError(t, err)
		require.True(t, ok, "record %d should still be allowed", i)
		require.NoError(t, svc.Record(ctx, "u1", camp.ID))
		clock.Advance(10 * time.Minute)
	}

	ok, err := svc.Eligible(ctx, "u1", camp)
	require.NoError(t, err)
	assert.False(t, ok, "hourly cap reached")

	// first record was at 10:00, now is 10:30; it leaves the window at 11:00
	clock.Advance(29 * time.Minute)
	ok, _ = svc.Eligible(ctx, "u1", camp)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, _ = svc.Eligible(ctx, "u1", camp)
	assert.True(t, ok, "eligible once the earliest record aged out")
}

func TestFilter_CampaignDailyCapIsPerCampaign(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(Caps{PerHour: 100, PerDay: 100, PerWeek: 100, PerCampaignPerDay: 2})

	require.NoError(t, svc.Record(ctx, "u1", "c1"))
	clock.Advance(time.Minute)
	require.NoError(t, svc.Record(ctx, "u1", "c1"))

	out, err := svc.Filter(ctx, []domain.Campaign{{ID: "c1"}, {ID: "c2"}}, "u1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].ID)

	out, _ = svc.Filter(ctx, []domain.Campaign{{ID: "c1"}}, "u2")
	assert.Len(t, out, 1, "other users are unaffected")
}

func TestFilter_CampaignOverride(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(Caps{PerHour: 1, PerDay: 100, PerWeek: 100, PerCampaignPerDay: 100})
	loose := domain.Campaign{ID: "c1", FrequencyCaps: &domain.FrequencyCaps{PerHour: 5}}

	require.NoError(t, svc.Record(ctx, "u1", "c1"))

	out, err := svc.Filter(ctx, []domain.Campaign{{ID: "c0"}, loose}, "u1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
}

func TestFilter_RecordAtExactlyNowCounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(Caps{PerHour: 1, PerDay: 1, PerWeek: 1, PerCampaignPerDay: 1})

	require.NoError(t, svc.Record(ctx, "u1", "c1"))
	counts, err := svc.Counts(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Hour: 1, Day: 1, Week: 1, CampaignDay: 1}, counts)
}

func TestSweep_TrimsOnlyExpiredPrefix(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(Caps{PerHour: 100, PerDay: 100, PerWeek: 100, PerCampaignPerDay: 100})

	require.NoError(t, svc.Record(ctx, "u1", "c1"))
	require.NoError(t, svc.Record(ctx, "u2", "c1"))
	clock.Advance(6 * 24 * time.Hour)
	require.NoError(t, svc.Record(ctx, "u1", "c2"))
	clock.Advance(25 * time.Hour)

	before := testutil.ToFloat64(frequencySwept)
	removed, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, before+2, testutil.ToFloat64(frequencySwept))

	counts, err := svc.Counts(ctx, "u1", "c2")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Week)

	keys, _ := svc.records.Keys(ctx, keyPrefix)
	assert.Equal(t, []string{"freq:u1"}, keys, "fully expired log is removed")
}

func TestFilter_ConcurrentRecordsAreAllCounted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(Caps{PerHour: 1000, PerDay: 1000, PerWeek: 1000, PerCampaignPerDay: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Record(ctx, "u1", "c1")
		}()
	}
	wg.Wait()

	counts, err := svc.Counts(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, counts.Hour)
}

func TestFilter_EachCapAloneRejects(t *testing.T) {
	loose := Caps{PerHour: 100, PerDay: 100, PerWeek: 100, PerCampaignPerDay: 100}

	cases := []struct {
		name     string
		caps     func(Caps) Caps
		campaign string
		age      time.Duration
	}{
		{"hourly", func(c Caps) Caps { c.PerHour = 2; return c }, "other", time.Minute},
		{"daily", func(c Caps) Caps { c.PerDay = 2; return c }, "other", 3 * time.Hour},
		{"weekly", func(c Caps) Caps { c.PerWeek = 2; return c }, "other", 3 * 24 * time.Hour},
		{"campaign daily", func(c Caps) Caps { c.PerCampaignPerDay = 2; return c }, "c1", 3 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			svc, clock := newTestService(tc.caps(loose))

			require.NoError(t, svc.Record(ctx, "u1", tc.campaign))
			require.NoError(t, svc.Record(ctx, "u1", tc.campaign))
			clock.Advance(tc.age)

			out, err := svc.Filter(ctx, []domain.Campaign{{ID: "c1"}}, "u1")
			require.NoError(t, err)
			assert.Empty(t, out)

			svc.SetConfig(Config{Defaults: loose, SweepInterval: time.Minute})
			out, err = svc.Filter(ctx, []domain.Campaign{{ID: "c1"}}, "u1")
			require.NoError(t, err)
			assert.Len(t, out, 1, "the same history passes the loose caps")
		})
	}
}

func TestDefaultConfig_Caps(t *testing.T) {
	assert.Equal(t, Caps{PerHour: 5, PerDay: 20, PerWeek: 100, PerCampaignPerDay: 3}, DefaultConfig().Defaults)

	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc := NewService(kvstore.NewMemoryLog[domain.FrequencyRecord](), DefaultConfig())
	svc.SetClock(clock.Now)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, "u1", "c1"))
	}
	clock.Advance(2 * time.Hour)
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Record(ctx, "u1", "other"))
	}
	clock.Advance(time.Minute)

	out, err := svc.Filter(ctx, []domain.Campaign{{ID: "c1"}, {ID: "c2"}}, "u1")
	require.NoError(t, err)
	require.Len(t, out, 1, "c1 hit three a day, four an hour is still under five")
	assert.Equal(t, "c2", out[0].ID)
}

func TestRun_PicksUpNewSweepInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, clock := newTestService(Caps{PerHour: 10, PerDay: 10, PerWeek: 10, PerCampaignPerDay: 10})
	svc.SetConfig(Config{Defaults: svc.config().Defaults, SweepInterval: time.Hour})

	require.NoError(t, svc.Record(ctx, "u1", "c1"))
	clock.Advance(8 * 24 * time.Hour)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.SetConfig(Config{Defaults: svc.config().Defaults, SweepInterval: 10 * time.Millisecond})
	assert.Eventually(t, func() bool {
		keys, err := svc.records.Keys(ctx, keyPrefix)
		return err == nil && len(keys) == 0
	}, 2*time.Second, 10*time.Millisecond, "expired log swept on the shorter interval")

	cancel()
	require.NoError(t, <-done)
}
