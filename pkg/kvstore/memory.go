package kvstore

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

const shardCount = 32

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

type storeShard[V any] struct {
	mu    sync.RWMutex
	items map[string]Versioned[V]
}

// MemoryStore is an in-process Store sharded by key hash so that writers on
// unrelated keys do not contend.
type MemoryStore[V any] struct {
	shards [shardCount]*storeShard[V]
}

var _ Store[int] = (*MemoryStore[int])(nil)

func NewMemoryStore[V any]() *MemoryStore[V] {
	s := &MemoryStore[V]{}
	for i := range s.shards {
		s.shards[i] = &storeShard[V]{items: make(map[string]Versioned[V])}
	}
	return s
}

func (s *MemoryStore[V]) Get(ctx context.Context, key string) (Versioned[V], bool, error) {
	sh := s.shards[shardFor(key)]
	sh.mu.RLock()
	v, ok := sh.items[key]
	sh.mu.RUnlock()
	return v, ok, nil
}

func (s *MemoryStore[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, value V) (bool, error) {
	sh := s.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.items[key]
	switch {
	case !ok && expected != 0:
		return false, nil
	case ok && cur.Version != expected:
		return false, nil
	}
	sh.items[key] = Versioned[V]{Value: value, Version: expected + 1}
	return true, nil
}

func (s *MemoryStore[V]) Delete(ctx context.Context, key string) error {
	sh := s.shards[shardFor(key)]
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore[V]) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.items {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys, nil
}

type logShard[E any] struct {
	mu    sync.RWMutex
	items map[string][]E
}

// MemoryLog is an in-process Log with the same sharding as MemoryStore.
type MemoryLog[E any] struct {
	shards [shardCount]*logShard[E]
}

var _ Log[int] = (*MemoryLog[int])(nil)

func NewMemoryLog[E any]() *MemoryLog[E] {
	l := &MemoryLog[E]{}
	for i := range l.shards {
		l.shards[i] = &logShard[E]{items: make(map[string][]E)}
	}
	return l
}

func (l *MemoryLog[E]) Append(ctx context.Context, key string, entries ...E) error {
	if len(entries) == 0 {
		return nil
	}
	sh := l.shards[shardFor(key)]
	sh.mu.Lock()
	sh.items[key] = append(sh.items[key], entries...)
	sh.mu.Unlock()
	return nil
}

func (l *MemoryLog[E]) Entries(ctx context.Context, key string) ([]E, error) {
	sh := l.shards[shardFor(key)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cur := sh.items[key]
	if len(cur) == 0 {
		return nil, nil
	}
	out := make([]E, len(cur))
	copy(out, cur)
	return out, nil
}

func (l *MemoryLog[E]) TrimPrefix(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	sh := l.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur := sh.items[key]
	if n >= len(cur) {
		delete(sh.items, key)
		return nil
	}
	rest := make([]E, len(cur)-n)
	copy(rest, cur[n:])
	sh.items[key] = rest
	return nil
}

func (l *MemoryLog[E]) Delete(ctx context.Context, key string) error {
	sh := l.shards[shardFor(key)]
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
	return nil
}

func (l *MemoryLog[E]) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, sh := range l.shards {
		sh.mu.RLock()
		for k := range sh.items {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys, nil
}
