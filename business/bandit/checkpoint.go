package bandit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"
)

// Checkpoint caps every bucket and writes a snapshot of it to the
// checkpoint repository. It returns the number of buckets written.
func (s *Service) Checkpoint(ctx context.Context) (int, error) {
	if s.checkpoints == nil {
		return 0, nil
	}

	cfg := s.config()
	keys, err := s.buckets.Keys(ctx, bucketPrefix)
	if err != nil {
		return 0, fmt.Errorf("list buckets: %w", err)
	}

	written := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("context error: %w", err)
		}
		bucket := strings.TrimPrefix(key, bucketPrefix)

		if _, err := s.capArms(ctx, bucket, cfg.MaxArmsPerBucket); err != nil {
			logger.Warn("bandit_cap_arms_failed", "bucket", bucket, "error", err)
		}

		snap, err := s.snapshot(ctx, bucket)
		if err != nil {
			return written, err
		}
		if err := s.checkpoints.SaveCheckpoint(ctx, snap); err != nil {
			return written, fmt.Errorf("save checkpoint %s: %w", bucket, err)
		}
		written++
	}

	logger.Info("bandit_checkpoint", "buckets", written)
	return written, nil
}

func (s *Service) snapshot(ctx context.Context, bucket string) (Snapshot, error) {
	st, err := s.bucket(ctx, bucket)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Bucket: st.clone(), TakenAt: s.now()}
	for _, id := range st.Arms {
		v, found, err := s.arms.Get(ctx, armKey(bucket, id))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load arm %s: %w", id, err)
		}
		if found && v.Value != nil {
			snap.Arms = append(snap.Arms, v.Value.clone())
		}
	}
	return snap, nil
}

// Restore loads snapshots into the store without overwriting state that is
// already live. It returns the number of buckets restored.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.checkpoints == nil {
		return 0, nil
	}
	snaps, err := s.checkpoints.LoadCheckpoints(ctx)
	if err != nil {
		return 0, fmt.Errorf("load checkpoints: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		bucket := snap.Bucket.Bucket
		created, err := kvstore.CreateIfAbsent(ctx, s.buckets, bucketKey(bucket), snap.Bucket.clone())
		if err != nil {
			return restored, fmt.Errorf("restore bucket %s: %w", bucket, err)
		}
		if !created {
			continue
		}
		for _, arm := range snap.Arms {
			if _, err := kvstore.CreateIfAbsent(ctx, s.arms, armKey(bucket, arm.ArmID), arm.clone()); err != nil {
				return restored, fmt.Errorf("restore arm %s: %w", arm.ArmID, err)
			}
		}
		restored++
	}

	logger.Info("bandit_restore", "buckets", restored, "snapshots", len(snaps))
	return restored, nil
}

// RunCheckpointer checkpoints on the configured interval and once more on
// shutdown. A new interval from SetConfig takes effect immediately.
func (s *Service) RunCheckpointer(ctx context.Context) error {
	interval := s.config().CheckpointInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.reload:
			if next := s.config().CheckpointInterval; next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if _, err := s.Checkpoint(flushCtx); err != nil {
				logger.Error("bandit_final_checkpoint_failed", "error", err)
			}
			cancel()
			return nil
		case <-ticker.C:
			if _, err := s.Checkpoint(ctx); err != nil {
				logger.Error("bandit_checkpoint_failed", "error", err)
			}
		}
	}
}
