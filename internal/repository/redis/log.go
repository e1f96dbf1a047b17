package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"adDecisioning/pkg/kvstore"

	"github.com/redis/go-redis/v9"
)

// Log keeps each key as a Redis list of JSON entries, oldest first.
type Log[E any] struct {
	client redis.UniversalClient
	opts   Options
}

var _ kvstore.Log[int] = (*Log[int])(nil)

func NewLog[E any](client redis.UniversalClient, opts Options) *Log[E] {
	return &Log[E]{client: client, opts: opts}
}

func (l *Log[E]) key(k string) string { return l.opts.Namespace + k }

func (l *Log[E]) Append(ctx context.Context, key string, entries ...E) error {
	if len(entries) == 0 {
		return nil
	}
	vals := make([]any, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry for %s: %w", key, err)
		}
		vals[i] = raw
	}

	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key(key), vals...)
	if l.opts.TTL > 0 {
		pipe.PExpire(ctx, l.key(key), l.opts.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

func (l *Log[E]) Entries(ctx context.Context, key string) ([]E, error) {
	raws, err := l.client.LRange(ctx, l.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := make([]E, 0, len(raws))
	for _, raw := range raws {
		var e E
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry of %s: %w", key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// TrimPrefix drops the n oldest entries. Redis removes the list once it is
// empty.
func (l *Log[E]) TrimPrefix(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := l.client.LTrim(ctx, l.key(key), int64(n), -1).Err(); err != nil {
		return fmt.Errorf("failed to trim %s: %w", key, err)
	}
	return nil
}

func (l *Log[E]) Delete(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *Log[E]) Keys(ctx context.Context, prefix string) ([]string, error) {
	return scanKeys(ctx, l.client, l.opts.Namespace, prefix)
}
