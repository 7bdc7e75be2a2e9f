// Package resilience provides the bounded retry loop used for per-property
// enrichment.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff computes the delay before retry number attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration before every retry.
type FixedBackoff time.Duration

// Delay implements Backoff.
func (f FixedBackoff) Delay(int) time.Duration { return time.Duration(f) }

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// Max, with ±JitterFraction random jitter.
type ExponentialBackoff struct {
	Initial        time.Duration
	Max            time.Duration
	Multiplier     float64
	JitterFraction float64
}

// Delay implements Backoff.
func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(e.Initial) * math.Pow(mult, float64(attempt-1))
	if e.Max > 0 && delay > float64(e.Max) {
		delay = float64(e.Max)
	}
	if e.JitterFraction > 0 {
		jitterRange := delay * e.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryConfig controls a retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	Backoff Backoff

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means every error is retried.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FixedRetry builds a config with maxRetries retries after the first
// attempt, each preceded by delay.
func FixedRetry(maxRetries int, delay time.Duration, shouldRetry func(error) bool) RetryConfig {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryConfig{
		MaxAttempts: maxRetries + 1,
		Backoff:     FixedBackoff(delay),
		ShouldRetry: shouldRetry,
	}
}

// Result reports how a retry loop ended.
type Result[T any] struct {
	Value    T
	Attempts int
}

// DoVal runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The attempt count is returned on
// every path.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff(0)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var res Result[T]
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		val, err := fn(ctx)
		if err == nil {
			res.Value = val
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return res, lastErr
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return res, lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, cfg.Backoff.Delay(attempt)); serr != nil {
			return res, lastErr
		}
	}
	return res, lastErr
}

// Do is DoVal for functions without a result.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (int, error) {
	res, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return res.Attempts, err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			append([]zap.Field{
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			}, fields...)...,
		)
	}
}
