// Package retry provides a bounded exponential-backoff wrapper for
// network calls.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Factor multiplies the delay after each failed attempt.
	Factor float64
}

// DefaultPolicy matches the backoff used for outbound HTTP calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Factor:      2.0,
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential
// backoff between attempts. Only errors for which transient returns
// true are retried; a nil transient func retries everything. The last
// error is returned when all attempts fail. Sleeps are cut short by
// ctx cancellation.
func Do(
	ctx context.Context,
	p Policy,
	logger *slog.Logger,
	transient func(error) bool,
	fn func() error,
) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if transient != nil && !transient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		if logger != nil {
			logger.Warn("transient failure, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}

	return lastErr
}
