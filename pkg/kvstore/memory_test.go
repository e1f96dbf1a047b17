//go:build !integration

package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[string]()

	ok, err := s.CompareAndSwap(ctx, "k", 1, "x")
	require.NoError(t, err)
	assert.False(t, ok, "non-zero version on absent key must fail")

	ok, err = s.CompareAndSwap(ctx, "k", 0, "a")
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", v.Value)
	assert.Equal(t, uint64(1), v.Version)

	ok, _ = s.CompareAndSwap(ctx, "k", 0, "b")
	assert.False(t, ok, "create must fail once the key exists")

	ok, _ = s.CompareAndSwap(ctx, "k", 1, "b")
	assert.True(t, ok)

	v, _, _ = s.Get(ctx, "k")
	assert.Equal(t, "b", v.Value)
	assert.Equal(t, uint64(2), v.Version)
}

func TestUpdate_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int]()

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					_, err := Update(ctx, s, "counter", func(cur int, _ bool) (int, error) {
						return cur + 1, nil
					})
					if err == nil {
						break
					}
					if !errors.Is(err, ErrConflict) {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	v, _, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, v.Value)
}

func TestUpdate_FnErrorAbortsWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int]()
	boom := errors.New("boom")

	_, err := Update(ctx, s, "k", func(int, bool) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	_, found, _ := s.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int]()
	for _, k := range []string{"arm:b1:x", "arm:b1:y", "bucket:b1", "arm:b2:x"} {
		_, err := CreateIfAbsent(ctx, s, k, 1)
		require.NoError(t, err)
	}

	keys, err := s.Keys(ctx, "arm:b1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"arm:b1:x", "arm:b1:y"}, keys)
}

func TestMemoryLog_AppendAndTrim(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog[int]()

	require.NoError(t, l.Append(ctx, "u1", 1, 2, 3))
	require.NoError(t, l.Append(ctx, "u1", 4))

	got, err := l.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	got[0] = 99
	again, _ := l.Entries(ctx, "u1")
	assert.Equal(t, 1, again[0], "entries must be a copy")

	require.NoError(t, l.TrimPrefix(ctx, "u1", 2))
	got, _ = l.Entries(ctx, "u1")
	assert.Equal(t, []int{3, 4}, got)

	require.NoError(t, l.TrimPrefix(ctx, "u1", 10))
	keys, _ := l.Keys(ctx, "")
	assert.Empty(t, keys, "fully trimmed key is removed")
}
