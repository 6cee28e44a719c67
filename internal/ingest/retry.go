package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/inodb/vcfload/internal/store"
)

// RetryPolicy bounds the retries of a single store write.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy is 3 exponential retries from 50ms, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxRetries:      3,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// write runs op until it succeeds or the policy gives up. Exhaustion is
// reported as store.ErrStoreUnavailable; cancellation as the context error.
// A store.ErrRejected failure is not retried.
func write[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, what string, op func() (T, error)) (T, error) {
	var out T
	attempt := func() error {
		var err error
		out, err = op()
		if errors.Is(err, store.ErrRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("retrying store write",
			zap.String("op", what),
			zap.Duration("backoff", next),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(attempt, p.backOff(ctx), notify); err != nil {
		if errors.Is(err, store.ErrRejected) {
			return out, fmt.Errorf("%s: %w", what, err)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%s: %w: %v", what, store.ErrStoreUnavailable, err)
	}
	return out, nil
}
