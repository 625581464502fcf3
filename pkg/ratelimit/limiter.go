package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces outgoing requests
type Limiter interface {
	// Wait blocks until the next request may be issued or ctx is done
	Wait(ctx context.Context) error
}

// Jittered sleeps a uniformly random duration in [Min, Max] on every Wait,
// so consecutive requests do not follow a fixed cadence.
type Jittered struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJittered creates a jittered limiter for the given range
func NewJittered(min, max time.Duration) *Jittered {
	if max < min {
		min, max = max, min
	}
	return &Jittered{
		Min: min,
		Max: max,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next draws the next delay without sleeping
func (j *Jittered) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rnd == nil {
		j.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return j.Min + time.Duration(j.rnd.Int63n(int64(j.Max-j.Min)+1))
}

// Wait sleeps for the next drawn delay
func (j *Jittered) Wait(ctx context.Context) error {
	return Sleep(ctx, j.Next())
}

// Noop never waits
type Noop struct{}

// Wait returns immediately unless ctx is already done
func (Noop) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
