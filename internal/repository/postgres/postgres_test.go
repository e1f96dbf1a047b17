//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"adDecisioning/business/bandit"
	"adDecisioning/domain"
	"adDecisioning/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	db, err := gorm.Open(pg.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestCampaignRepository_ActiveCampaigns(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewCampaignRepository(db)

	id := "it-" + uuid.NewString()
	c := domain.Campaign{
		ID:           id,
		Name:         "integration",
		Status:       domain.CampaignStatusActive,
		BaseBid:      1.5,
		QualityScore: 0.8,
		TargetingRaw: []byte(`{"locations":["ID"],"interests":["sports"]}`),
		CapsRaw:      []byte(`{"per_hour":2}`),
		Creatives:    []domain.Creative{{ID: id + "-cr", Format: "banner"}},
	}
	require.NoError(t, db.Create(&c).Error)
	t.Cleanup(func() {
		db.Where("campaign_id = ?", id).Delete(&domain.Creative{})
		db.Delete(&domain.Campaign{}, "id = ?", id)
	})

	all, err := repo.ActiveCampaigns(ctx)
	require.NoError(t, err)
	var got *domain.Campaign
	for i := range all {
		if all[i].ID == id {
			got = &all[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, []string{"ID"}, got.Targeting.Locations)
	require.NotNil(t, got.FrequencyCaps)
	assert.Equal(t, 2, got.FrequencyCaps.PerHour)
	assert.Equal(t, id+"-cr", got.PrimaryCreative())

	require.NoError(t, repo.UpdateStatus(ctx, id, domain.CampaignStatusPaused))
	all, err = repo.ActiveCampaigns(ctx)
	require.NoError(t, err)
	for _, c := range all {
		assert.NotEqual(t, id, c.ID)
	}
}

func TestEventRepository_IdempotentWrites(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewEventRepository(db)

	ev := domain.AuctionEvent{
		EventID:       uuid.NewString(),
		AuctionID:     uuid.NewString(),
		UserID:        "u1",
		CampaignID:    "c1",
		ClearingPrice: 0.42,
		CreatedAt:     time.Now(),
	}
	upd := domain.BanditUpdateEvent{EventID: uuid.NewString(), Bucket: "b", ArmID: "c1", Reward: 1, Applied: true, CreatedAt: time.Now()}

	require.NoError(t, repo.WriteEvents(ctx, []domain.Event{ev, upd}))
	require.NoError(t, repo.WriteEvents(ctx, []domain.Event{ev}), "retries do not fail on duplicates")

	var n int64
	require.NoError(t, db.Model(&domain.AuctionEvent{}).Where("event_id = ?", ev.EventID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestBanditRepository_CheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewBanditRepository(db)

	bucket := "it-" + uuid.NewString()
	snap := bandit.Snapshot{
		Bucket:  bandit.BucketState{Bucket: bucket, Interactions: 7, Arms: []string{"a"}},
		Arms:    []*bandit.ArmState{{ArmID: "a", Dim: 1, A: []float64{2}, AInv: []float64{0.5}, B: []float64{1}, Theta: []float64{0.5}, Plays: 1}},
		TakenAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	t.Cleanup(func() { db.Delete(&domain.BanditCheckpoint{}, "bucket = ?", bucket) })

	require.NoError(t, repo.SaveCheckpoint(ctx, snap))
	snap.Bucket.Interactions = 9
	require.NoError(t, repo.SaveCheckpoint(ctx, snap))

	all, err := repo.LoadCheckpoints(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range all {
		if s.Bucket.Bucket == bucket {
			found = true
			assert.EqualValues(t, 9, s.Bucket.Interactions)
			assert.Equal(t, []float64{0.5}, s.Arms[0].Theta)
		}
	}
	assert.True(t, found)
}
