// Package kvstore defines the key-addressed storage used by the decisioning
// hot path. Values are versioned so that writers can use optimistic
// compare-and-swap instead of locks, and logs support append plus prefix
// trimming for sliding-window data.
package kvstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned by Update when the optimistic retry budget is
	// exhausted by concurrent writers.
	ErrConflict = errors.New("kvstore: concurrent update conflict")
)

// Versioned is a value together with the version it was read at. A version
// of zero means the key does not exist.
type Versioned[V any] struct {
	Value   V
	Version uint64
}

// Store is a versioned key/value store. Implementations must make
// CompareAndSwap atomic per key: it succeeds only when the stored version
// equals the expected one (zero meaning "absent").
type Store[V any] interface {
	Get(ctx context.Context, key string) (Versioned[V], bool, error)
	CompareAndSwap(ctx context.Context, key string, expected uint64, value V) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Log is an append-only list per key. Appends to the same key are totally
// ordered; TrimPrefix removes the n oldest entries and deletes the key once
// it becomes empty.
type Log[E any] interface {
	Append(ctx context.Context, key string, entries ...E) error
	Entries(ctx context.Context, key string) ([]E, error)
	TrimPrefix(ctx context.Context, key string, n int) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

const maxUpdateAttempts = 64

// Update applies fn to the current value of key with a copy-on-write CAS
// loop. fn must not mutate cur in place; it receives found=false for absent
// keys. Any error returned by fn aborts the update and is returned as is.
func Update[V any](ctx context.Context, s Store[V], key string, fn func(cur V, found bool) (V, error)) (V, error) {
	var zero V
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context error: %w", err)
		}

		cur, found, err := s.Get(ctx, key)
		if err != nil {
			return zero, fmt.Errorf("get %s: %w", key, err)
		}

		next, err := fn(cur.Value, found)
		if err != nil {
			return zero, err
		}

		var expected uint64
		if found {
			expected = cur.Version
		}
		ok, err := s.CompareAndSwap(ctx, key, expected, next)
		if err != nil {
			return zero, fmt.Errorf("cas %s: %w", key, err)
		}
		if ok {
			return next, nil
		}
	}
	return zero, fmt.Errorf("%s: %w", key, ErrConflict)
}

// CreateIfAbsent stores value under key only when the key does not exist.
// It reports whether this call created the key.
func CreateIfAbsent[V any](ctx context.Context, s Store[V], key string, value V) (bool, error) {
	return s.CompareAndSwap(ctx, key, 0, value)
}
