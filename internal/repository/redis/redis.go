// Package redis implements the versioned key/value store and the
// append-only logs on top of Redis so several decisioning instances can
// share hot state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"adDecisioning/pkg/kvstore"

	"github.com/redis/go-redis/v9"
)

const (
	fieldVersion = "v"
	fieldData    = "d"

	scanCount = 512
)

// casScript swaps the hash at KEYS[1] when its version equals ARGV[1].
// An absent key has version 0.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur == false then cur = 0 else cur = tonumber(cur) end
if cur ~= tonumber(ARGV[1]) then return 0 end
redis.call('HSET', KEYS[1], 'v', cur + 1, 'd', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then redis.call('PEXPIRE', KEYS[1], ttl) end
return 1
`)

type Options struct {
	// Namespace is prepended to every key and stripped from Keys results.
	Namespace string
	// TTL expires keys that have not been written for that long. Zero keeps
	// them forever.
	TTL time.Duration
}

type Store[V any] struct {
	client redis.UniversalClient
	opts   Options
}

var _ kvstore.Store[int] = (*Store[int])(nil)

func NewStore[V any](client redis.UniversalClient, opts Options) *Store[V] {
	return &Store[V]{client: client, opts: opts}
}

func (s *Store[V]) key(k string) string { return s.opts.Namespace + k }

func (s *Store[V]) Get(ctx context.Context, key string) (kvstore.Versioned[V], bool, error) {
	var out kvstore.Versioned[V]
	vals, err := s.client.HMGet(ctx, s.key(key), fieldVersion, fieldData).Result()
	if err != nil {
		return out, false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return out, false, nil
	}

	version, err := strconv.ParseUint(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return out, false, fmt.Errorf("corrupt version for %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(fmt.Sprint(vals[1])), &out.Value); err != nil {
		return out, false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	out.Version = version
	return out, true, nil
}

func (s *Store[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, value V) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	n, err := casScript.Run(ctx, s.client, []string{s.key(key)}, expected, raw, s.opts.TTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to swap %s in Redis: %w", key, err)
	}
	return n == 1, nil
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	return nil
}

func (s *Store[V]) Keys(ctx context.Context, prefix string) ([]string, error) {
	return scanKeys(ctx, s.client, s.opts.Namespace, prefix)
}

// scanKeys lists keys under namespace+prefix with SCAN, never KEYS. A
// cluster client is scanned on every master.
func scanKeys(ctx context.Context, client redis.UniversalClient, namespace, prefix string) ([]string, error) {
	match := escapeGlob(namespace+prefix) + "*"

	cluster, ok := client.(*redis.ClusterClient)
	if !ok {
		keys, err := scanNode(ctx, client, namespace, match)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
		}
		return keys, nil
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		found, err := scanNode(ctx, node, namespace, match)
		if err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	return keys, nil
}

func scanNode(ctx context.Context, client redis.Cmdable, namespace, match string) ([]string, error) {
	var keys []string
	iter := client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), namespace))
	}
	return keys, iter.Err()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
