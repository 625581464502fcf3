package retry

import (
	"math/rand"
	"time"

	errs "feedharvest/pkg/errors"
)

// BackoffStrategy computes the wait after a failed attempt. attempt is
// 1-based: the wait after the first failure is NextDelay(1).
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// LinearBackoff waits Base*attempt plus a uniform jitter in [0, Jitter)
type LinearBackoff struct {
	Base   time.Duration
	Jitter time.Duration
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := lb.Base * time.Duration(attempt)
	if lb.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(lb.Jitter)))
	}
	return delay
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// ErrorTypeBackoff provides different backoff strategies based on error types
type ErrorTypeBackoff struct {
	NetworkErrorBackoff BackoffStrategy
	// RateLimitBackoff for 429 responses (typically longer delays)
	RateLimitBackoff   BackoffStrategy
	ServerErrorBackoff BackoffStrategy
	DefaultBackoff     BackoffStrategy
}

// NewErrorTypeBackoff creates the linear per-type backoff used by the
// session clients
func NewErrorTypeBackoff(rateBase, rateJitter, serverBase, serverJitter time.Duration) *ErrorTypeBackoff {
	server := &LinearBackoff{Base: serverBase, Jitter: serverJitter}
	return &ErrorTypeBackoff{
		NetworkErrorBackoff: server,
		RateLimitBackoff:    &LinearBackoff{Base: rateBase, Jitter: rateJitter},
		ServerErrorBackoff:  server,
		DefaultBackoff:      server,
	}
}

// GetBackoffForError returns the appropriate backoff strategy for the error type
func (etb *ErrorTypeBackoff) GetBackoffForError(errorType errs.ErrorType) BackoffStrategy {
	var b BackoffStrategy
	switch errorType {
	case errs.ErrorTypeNetwork:
		b = etb.NetworkErrorBackoff
	case errs.ErrorTypeRateLimit:
		b = etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		b = etb.ServerErrorBackoff
	}
	if b == nil {
		b = etb.DefaultBackoff
	}
	if b == nil {
		return &ConstantBackoff{}
	}
	return b
}
