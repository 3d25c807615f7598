package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/marcus-crane/steamcharts/db"
)

// RunWithRetry repeats the whole run up to retries more times, waiting delay
// between attempts. A run already in progress is not retried.
func RunWithRetry(ctx context.Context, p *Pipeline, retries int, delay time.Duration) (db.Run, error) {
	if retries < 0 {
		retries = 0
	}
	// NewConstant refuses non-positive durations
	if delay <= 0 {
		delay = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var last db.Run
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		run, err := p.RunAttempt(ctx, attempt)
		last = run
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRunInProgress) || ctx.Err() != nil {
			return err
		}
		if attempt <= retries {
			logger.Warn("Pipeline run failed, retrying",
				slog.String("stack", err.Error()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
		}
		return retry.RetryableError(err)
	})
	return last, err
}
