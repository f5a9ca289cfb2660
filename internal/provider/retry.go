package provider

import (
	"context"
	"math"
	"time"
)

// Retrier holds shared retry configuration reused by every driver.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NewRetrier applies sane defaults (3 retries after the first attempt, so up
// to 4 attempts in all; 1s base delay) when the caller leaves either field
// unset.
func NewRetrier(maxRetries int, baseDelay time.Duration) Retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Do runs op with exponential backoff, stopping early when isRetryable
// reports false for the latest error or the context is done.
func (r Retrier) Do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt == r.MaxRetries {
			return lastErr
		}
		backoff := time.Duration(float64(r.BaseDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
