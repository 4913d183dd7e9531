// Package retry implements bounded retries with exponential backoff and jitter
// for calls to remote backends.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Options configure a retry loop.
type Options struct {
	// MaxAttempts is the total number of attempts including the first one.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt.
	Multiplier float64
	// JitterPercent randomizes each delay by +/- this share.
	JitterPercent int
	// Retryable decides whether an error is worth another attempt.
	// Defaults to never retrying.
	Retryable func(error) bool
}

// DefaultOptions returns three attempts starting at 200ms.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 20,
	}
}

// RetryableIs returns a Retryable predicate matching any of the targets.
func RetryableIs(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Delay returns the backoff for the given zero-based attempt.
func (o Options) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(o.InitialDelay) * math.Pow(o.Multiplier, float64(attempt))
	if o.MaxDelay > 0 && delay > float64(o.MaxDelay) {
		delay = float64(o.MaxDelay)
	}
	if o.JitterPercent > 0 {
		jitterRange := delay * float64(o.JitterPercent) / 100.0
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = float64(o.InitialDelay)
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. The last error is returned.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if opts.Retryable == nil || !opts.Retryable(err) || attempt == opts.MaxAttempts-1 {
			return err
		}
		timer := time.NewTimer(opts.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
