// Package pipeline turns platform clients into stored content.
//
// An Ingestor walks tracked targets strictly one at a time: Instagram
// accounts for scheduled and backfill passes, Facebook groups for group
// passes. For each target it fetches candidates, skips ids the catalog
// already holds, downloads media and then writes the post followed by its
// media rows. A failing target is logged and skipped; the run's counts only
// include targets that completed.
//
// A Runner wraps one job in a run record:
//
//	runner := pipeline.NewRunner(pipeline.Deps{...})
//	res, err := runner.Run(ctx, pipeline.Job{Kind: models.RunScheduled})
//
// It decrypts the platform cookies, validates the session and only then
// scrapes. An invalid session marks the cookies stale and alerts the
// operator; an indeterminate one just ends the run. Every line logged
// during the run is mirrored into the run record.
package pipeline
