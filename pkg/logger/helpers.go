package logger

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs the outcome of one HTTP attempt
func LogRequest(log Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		log.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRateLimit logs an HTTP 429 and the server's Retry-After, if any
func LogRateLimit(log Logger, url string, retryAfter time.Duration) {
	log.WithFields(map[string]interface{}{
		"url":         url,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogTargetResult logs the per-target outcome of a scrape
func LogTargetResult(log Logger, target string, newPosts, newStories int, err error) {
	l := log.WithFields(map[string]interface{}{
		"target":      target,
		"new_posts":   newPosts,
		"new_stories": newStories,
	})
	if err != nil {
		l.WithError(err).Error("Target failed")
		return
	}
	l.Info("Target done")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) Tee(w io.Writer) Logger                                    { return n }
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
