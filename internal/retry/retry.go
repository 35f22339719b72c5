package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"momentum-alerts/internal/broker"
)

// Policy bounds exponential-backoff retries around a single call site.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	logger      zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPolicy constructs a retry policy.
func NewPolicy(maxAttempts int, baseDelay time.Duration, logger zerolog.Logger) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		logger:      logger.With().Str("component", "retry").Logger(),
		sleep:       sleepCtx,
	}
}

// Do invokes op, retrying transient failures with exponential backoff.
// Non-retryable errors surface immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !broker.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		p.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("call failed, retrying")
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	p.logger.Error().Err(lastErr).Int("attempts", p.MaxAttempts).Msg("call failed after all attempts")
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
