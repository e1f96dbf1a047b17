// Package badger keeps bandit checkpoints in an embedded Badger database
// for deployments that run without Postgres.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"adDecisioning/business/bandit"
	"adDecisioning/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

const checkpointPrefix = "checkpoint:"

type Config struct {
	Path     string
	InMemory bool
}

type slogAdapter struct{}

func (slogAdapter) Errorf(format string, args ...any)   { logger.Error(fmt.Sprintf(format, args...)) }
func (slogAdapter) Warningf(format string, args ...any) { logger.Warn(fmt.Sprintf(format, args...)) }
func (slogAdapter) Infof(format string, args ...any)    { logger.Debug(fmt.Sprintf(format, args...)) }
func (slogAdapter) Debugf(format string, args ...any)   { logger.Debug(fmt.Sprintf(format, args...)) }

func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(slogAdapter{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

type CheckpointRepository struct {
	db *badger.DB
}

var _ bandit.CheckpointRepository = (*CheckpointRepository)(nil)

func NewCheckpointRepository(db *badger.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, snap bandit.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointPrefix+snap.Bucket.Bucket), raw)
	})
}

func (r *CheckpointRepository) LoadCheckpoints(ctx context.Context) ([]bandit.Snapshot, error) {
	var out []bandit.Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(checkpointPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var snap bandit.Snapshot
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunGC reclaims value log space; ErrNoRewrite means nothing to do.
func RunGC(db *badger.DB) error {
	err := db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}
