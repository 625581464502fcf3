package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"feedharvest/pkg/models"
)

// StaleRunMessage is recorded on runs reset by ResetStaleRuns
const StaleRunMessage = "Stale: reset on startup"

const runColumns = `id, kind, since, status, new_posts_count, new_stories_count, error, log, created_at, started_at, finished_at`

func scanRun(row rowScanner) (models.RunRecord, error) {
	var (
		r                        models.RunRecord
		since, started, finished sql.NullString
		created                  sql.NullString
	)
	err := row.Scan(&r.ID, &r.Kind, &since, &r.Status, &r.NewPostCount, &r.NewStoryCount,
		&r.ErrorMessage, &r.Log, &created, &started, &finished)
	if err != nil {
		return r, err
	}
	if r.Since, err = parseTimePtr(since); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	if r.StartedAt, err = parseTimePtr(started); err != nil {
		return r, err
	}
	if r.FinishedAt, err = parseTimePtr(finished); err != nil {
		return r, err
	}
	return r, nil
}

func (c *Catalog) insertRun(ctx context.Context, kind models.RunKind, since *time.Time, status models.RunStatus) (int64, error) {
	now := c.timestamp()
	started := sql.NullString{}
	if status == models.RunRunning {
		started = sql.NullString{String: now, Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (kind, since, status, created_at, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(kind), nullTimePtr(since), string(status), now, started,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s run: %w", kind, err)
	}
	return res.LastInsertId()
}

// StartRun records a run that begins immediately
func (c *Catalog) StartRun(ctx context.Context, kind models.RunKind, since *time.Time) (int64, error) {
	return c.insertRun(ctx, kind, since, models.RunRunning)
}

// RequestRun queues a run for the poller
func (c *Catalog) RequestRun(ctx context.Context, kind models.RunKind, since *time.Time) (int64, error) {
	return c.insertRun(ctx, kind, since, models.RunPending)
}

// ClaimRun moves a pending run to running. It reports false when the run
// was not pending, so two pollers never both claim it.
func (c *Catalog) ClaimRun(ctx context.Context, id int64) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(models.RunRunning), c.timestamp(), id, string(models.RunPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim run %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// PendingRuns returns requested runs oldest first
func (c *Catalog) PendingRuns(ctx context.Context) ([]models.RunRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = ? ORDER BY created_at, id`, string(models.RunPending))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FinishRun writes the final status, counts and error message of a run
func (c *Catalog) FinishRun(ctx context.Context, id int64, status models.RunStatus, counts models.RunCounts, errMsg string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?,
			new_posts_count = ?, new_stories_count = ?, error = ?
		WHERE id = ?`,
		string(status), c.timestamp(), counts.NewPosts, counts.NewStories, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	return nil
}

// AppendLog adds one line to a run's log
func (c *Catalog) AppendLog(ctx context.Context, id int64, line string) error {
	return c.appendLog(ctx, id, line+"\n")
}

func (c *Catalog) appendLog(ctx context.Context, id int64, text string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE runs SET log = log || ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("failed to append log of run %d: %w", id, err)
	}
	return nil
}

// GetRun returns one run record
func (c *Catalog) GetRun(ctx context.Context, id int64) (*models.RunRecord, bool, error) {
	r, err := scanRun(c.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return &r, true, nil
}

// ListRuns returns the most recent runs first
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResetStaleRuns marks runs that have been running longer than timeout as
// failed. Such runs were abandoned by a process that exited mid-run.
func (c *Catalog) ResetStaleRuns(ctx context.Context, timeout time.Duration) (int64, error) {
	now := c.now()
	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status = ? AND started_at < ?`,
		string(models.RunError), StaleRunMessage, formatTime(now),
		string(models.RunRunning), formatTime(now.Add(-timeout)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale runs: %w", err)
	}
	return res.RowsAffected()
}

// RunLog returns a writer that appends everything written to the run's log
func (c *Catalog) RunLog(ctx context.Context, id int64) io.Writer {
	return &runLogWriter{ctx: ctx, catalog: c, id: id}
}

type runLogWriter struct {
	ctx     context.Context
	catalog *Catalog
	id      int64
}

func (w *runLogWriter) Write(p []byte) (int, error) {
	// the log must survive a cancelled run
	ctx := context.WithoutCancel(w.ctx)
	if err := w.catalog.appendLog(ctx, w.id, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
