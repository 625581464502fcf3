// Package logger provides the structured logging interface used across
// feedharvest.
//
// It wraps zerolog with a small interface so components can take a Logger
// and tests can swap in NewTestLogger or NewNopLogger. Console output is
// pretty-printed; when a file is configured, events are also written to a
// size-rotated file.
//
// Basic Usage:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("account", "natgeo").Info("scraping")
//
// A run-scoped sink is attached with Tee. Everything logged through the
// returned logger is mirrored, as plain text lines, into the writer:
//
//	runLog := log.Tee(catalog.RunLog(ctx, runID))
//	runLog.Info("validating session")
package logger
