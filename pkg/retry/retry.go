package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/ratelimit"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use when no per-type strategy matches
	Backoff BackoffStrategy
	// ErrorBackoff, when set, picks a strategy from the error's type
	ErrorBackoff *ErrorTypeBackoff
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig is the policy used when a caller supplies none: three
// attempts with the linear per-type backoff of the session clients.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		ErrorBackoff: NewErrorTypeBackoff(60*time.Second, 5*time.Second, 5*time.Second, 5*time.Second),
		RetryIf:      DefaultRetryIf,
		Logger:       logger.GetLogger(),
	}
}

// ForPlatform builds the retry policy for one platform's requests
func ForPlatform(p config.PlatformConfig) *Config {
	return &Config{
		MaxAttempts: p.MaxAttempts,
		ErrorBackoff: NewErrorTypeBackoff(
			p.RateLimitBackoff, p.RateLimitJitter,
			p.ServerErrorBackoff, p.ServerErrorJitter,
		),
		RetryIf: DefaultRetryIf,
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	// Default to retrying unknown errors
	return true
}

// delayFor picks the wait before the next attempt. A server-supplied
// Retry-After wins over the computed backoff.
func (cfg *Config) delayFor(attempt int, err error) time.Duration {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			return apiErr.RetryAfter
		}
		if cfg.ErrorBackoff != nil {
			return cfg.ErrorBackoff.GetBackoffForError(apiErr.Type).NextDelay(attempt)
		}
	}
	if cfg.Backoff == nil {
		return 0
	}
	return cfg.Backoff.NextDelay(attempt)
}

// Do executes an operation with retry logic. Once attempts are exhausted the
// last error is returned wrapped, without a trailing wait.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		delay := cfg.delayFor(attempt, err)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay":        delay,
			"max_attempts": cfg.MaxAttempts,
		})

		if err := ratelimit.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}
