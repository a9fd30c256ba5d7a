package pipeline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryPolicy is applied uniformly to every step: a failed step is run
// again up to Retries times, waiting Delay between attempts.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// DefaultRetryPolicy retries twice with a two minute delay.
var DefaultRetryPolicy = RetryPolicy{Retries: 2, Delay: 2 * time.Minute}

// retryStep runs fn until it succeeds or the policy is exhausted. A
// cancelled context stops retrying immediately.
func retryStep[T any](ctx context.Context, policy RetryPolicy, logger *log.Entry, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt >= attempts {
			return zero, lastErr
		}

		logger.WithError(err).WithField("attempt", attempt).
			Warnf("step failed, retrying in %s", policy.Delay)

		if policy.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
			// continue to next attempt
		}
	}
}
