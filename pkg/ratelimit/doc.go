// Package ratelimit provides the politeness pacing used between requests.
//
// Scraping borrowed sessions is throttled by human-looking gaps rather than
// by a throughput budget: every logical request waits a random delay drawn
// from a configured range, and switching targets waits a delay drawn from a
// wider range.
//
//	pace := ratelimit.NewJittered(1*time.Second, 3*time.Second)
//	if err := pace.Wait(ctx); err != nil {
//	    return err
//	}
//
// Noop is used in tests and wherever pacing is disabled.
package ratelimit
