// Package retry provides the one bounded-retry helper shared by every
// remote call in the pipeline (outbox flushes, extractor invocations).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Timeout bounds each individual attempt. Zero means no per-attempt
	// deadline beyond the parent context.
	Timeout time.Duration
}

// Do runs op until it succeeds, the attempts are exhausted, or ctx is done.
// Each attempt gets its own deadline-scoped context. The error of the last
// attempt is returned, annotated with the attempt count.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d of %d attempts: %w", attempt, attempts, ctx.Err())
		case <-time.After(p.Delay):
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
