package pacing

import (
	"context"
	"fmt"
	"time"

	"adDecisioning/domain"
)

// Guard bounds every oracle call by a timeout, including oracles that do
// not honour context cancellation themselves.
type Guard struct {
	oracle  Oracle
	timeout time.Duration
}

var _ Oracle = (*Guard)(nil)

func NewGuard(oracle Oracle, timeout time.Duration) *Guard {
	return &Guard{oracle: oracle, timeout: timeout}
}

func (g *Guard) Filter(ctx context.Context, campaigns []domain.Campaign) ([]domain.Campaign, error) {
	return call(ctx, g.timeout, func(ctx context.Context) ([]domain.Campaign, error) {
		return g.oracle.Filter(ctx, campaigns)
	})
}

func (g *Guard) Multiplier(ctx context.Context, campaignID string) (float64, error) {
	m, err := call(ctx, g.timeout, func(ctx context.Context) (float64, error) {
		return g.oracle.Multiplier(ctx, campaignID)
	})
	if err != nil {
		return 0, err
	}
	return ClampMultiplier(m), nil
}

func (g *Guard) RecordSpend(ctx context.Context, campaignID string, amount float64) error {
	_, err := call(ctx, g.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.oracle.RecordSpend(ctx, campaignID, amount)
	})
	return err
}

type result[T any] struct {
	val T
	err error
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		pacingTimeouts.Inc()
		return zero, fmt.Errorf("pacing oracle: %w", ctx.Err())
	}
}
