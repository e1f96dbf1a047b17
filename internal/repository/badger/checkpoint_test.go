//go:build !integration

package badger

import (
	"context"
	"testing"
	"time"

	"adDecisioning/business/bandit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository_RoundTrip(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer db.Close()

	repo := NewCheckpointRepository(db)
	ctx := context.Background()

	for _, b := range []string{"b1", "b2"} {
		require.NoError(t, repo.SaveCheckpoint(ctx, bandit.Snapshot{
			Bucket:  bandit.BucketState{Bucket: b, Interactions: 3, Arms: []string{"a"}},
			Arms:    []*bandit.ArmState{{ArmID: "a", Dim: 1, A: []float64{2}, AInv: []float64{0.5}, B: []float64{1}, Theta: []float64{0.5}}},
			TakenAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		}))
	}
	// overwrite keeps one snapshot per bucket
	require.NoError(t, repo.SaveCheckpoint(ctx, bandit.Snapshot{
		Bucket: bandit.BucketState{Bucket: "b1", Interactions: 10},
	}))

	snaps, err := repo.LoadCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "b1", snaps[0].Bucket.Bucket)
	assert.EqualValues(t, 10, snaps[0].Bucket.Interactions)
	assert.Equal(t, []float64{0.5}, snaps[1].Arms[0].Theta)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Config{Path: dir})
	require.NoError(t, err)
	repo := NewCheckpointRepository(db)
	require.NoError(t, repo.SaveCheckpoint(context.Background(), bandit.Snapshot{Bucket: bandit.BucketState{Bucket: "x"}}))
	require.NoError(t, db.Close())

	db, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer db.Close()
	snaps, err := NewCheckpointRepository(db).LoadCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "x", snaps[0].Bucket.Bucket)
}
