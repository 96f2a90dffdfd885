package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
)

// RetryPolicy bounds the exponential backoff.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns 3 retries starting at 1s, doubling, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// PolicyFromConfig builds a policy from the sync configuration.
func PolicyFromConfig(cfg *config.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.BackoffMultiplier,
	}
}

// Retrier runs network operations with bounded exponential backoff.
type Retrier struct {
	policy RetryPolicy
	logger *events.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier.
func NewRetrier(policy RetryPolicy, logger *events.Logger) *Retrier {
	return &Retrier{
		policy: policy,
		logger: logger.WithField("component", "retry"),
		sleep:  sleepContext,
	}
}

// WithSleep replaces the delay function, typically to record delays in tests.
func (r *Retrier) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retrier {
	out := *r
	out.sleep = sleep
	return &out
}

// Policy returns the retry bounds.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do invokes op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. Client errors (4xx other than 429) return at once.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := r.policy.InitialDelay

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			}).Debug("Retrying request")

			if err := r.sleep(ctx, delay); err != nil {
				return zero, err
			}
			delay = nextDelay(delay, r.policy)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !models.IsRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func nextDelay(delay time.Duration, p RetryPolicy) time.Duration {
	next := time.Duration(float64(delay) * p.Multiplier)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
