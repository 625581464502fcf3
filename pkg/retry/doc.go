// Package retry provides bounded retry with per-error-type backoff.
//
// Session clients retry rate limits, server errors and transport failures
// with a linear backoff (base*attempt plus jitter). A Retry-After carried on
// an errors.Error overrides the computed wait:
//
//	cfg := &retry.Config{
//		MaxAttempts:  4,
//		ErrorBackoff: retry.NewErrorTypeBackoff(60*time.Second, 5*time.Second, 5*time.Second, 5*time.Second),
//		RetryIf:      retry.DefaultRetryIf,
//		Logger:       log,
//	}
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetchPage(ctx)
//	}, cfg)
package retry
