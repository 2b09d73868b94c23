package store

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// DefaultAttempts bounds optimistic retries when no configuration is supplied.
const DefaultAttempts = 3

// Retry runs fn until it succeeds, fails with a non-retryable error or the
// attempts are exhausted. Only domain.ErrConcurrencyConflict is retried.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !domain.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

const maxBackoffShift = 6

func backoff(attempt int) time.Duration {
	base := 2 * time.Millisecond << min(attempt, maxBackoffShift)
	return base + time.Duration(rand.Int64N(int64(base)))
}
