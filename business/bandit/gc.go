package bandit

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"adDecisioning/pkg/kvstore"
)

// capArms drops the oldest, least played arms of a bucket beyond limit.
func (s *Service) capArms(ctx context.Context, bucket string, limit int) (int, error) {
	st, err := s.bucket(ctx, bucket)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || len(st.Arms) <= limit {
		return 0, nil
	}

	type armInfo struct {
		armID       string
		lastUpdated time.Time
		plays       int64
	}

	infos := make([]armInfo, 0, len(st.Arms))
	for _, id := range st.Arms {
		v, found, err := s.arms.Get(ctx, armKey(bucket, id))
		if err != nil {
			return 0, fmt.Errorf("load arm %s: %w", id, err)
		}
		info := armInfo{armID: id}
		if found && v.Value != nil {
			info.lastUpdated = v.Value.LastUpdated
			info.plays = v.Value.Plays
		}
		infos = append(infos, info)
	}

	// oldest and least played first
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].lastUpdated.Equal(infos[j].lastUpdated) {
			return infos[i].plays < infos[j].plays
		}
		return infos[i].lastUpdated.Before(infos[j].lastUpdated)
	})

	toDrop := len(infos) - limit
	dropped := make([]string, 0, toDrop)
	for i := 0; i < toDrop; i++ {
		dropped = append(dropped, infos[i].armID)
	}

	_, err = kvstore.Update(ctx, s.buckets, bucketKey(bucket), func(cur BucketState, _ bool) (BucketState, error) {
		next := cur.clone()
		next.Arms = slices.DeleteFunc(next.Arms, func(id string) bool {
			return slices.Contains(dropped, id)
		})
		return next, nil
	})
	if err != nil {
		return 0, fmt.Errorf("update bucket %s: %w", bucket, err)
	}

	for _, id := range dropped {
		if err := s.arms.Delete(ctx, armKey(bucket, id)); err != nil {
			return 0, fmt.Errorf("delete arm %s: %w", id, err)
		}
	}
	banditArmsEvicted.Add(float64(len(dropped)))
	return len(dropped), nil
}
