package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stockroomhq/stockroom-backend/pkg/config"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

const (
	defaultRetryAttempts = 5
	defaultBaseBackoff   = 10 * time.Millisecond
	defaultMaxBackoff    = 250 * time.Millisecond
)

// RunWithRetry executes fn with capped exponential backoff while the returned
// error looks like transient lock or serialization contention. Any other error
// aborts immediately. The last contention error is returned once attempts are
// exhausted.
func RunWithRetry(ctx context.Context, cfg config.RetryConfig, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	cap := cfg.MaxBackoff
	if cap < base {
		cap = defaultMaxBackoff
	}

	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(cap, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if IsBusy(err) || pkgerrors.HasCode(err, pkgerrors.CodeBusy) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}
