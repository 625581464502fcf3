package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
	"feedharvest/pkg/notify"
	"feedharvest/pkg/ratelimit"
	"feedharvest/pkg/session"
)

// Job is one pipeline invocation. RunID refers to a run already claimed
// from the pending queue; zero makes the runner record a fresh one.
type Job struct {
	Kind  models.RunKind
	Since *time.Time
	RunID int64
}

// Result is the outcome of a job
type Result struct {
	RunID    int64
	Status   models.RunStatus
	Counts   models.RunCounts
	Validity session.Validity
	Sync     SyncResult
}

// Deps wires a Runner
type Deps struct {
	Catalog  Catalog
	Runs     RunStore
	Vault    CredentialVault
	Media    MediaFetcher
	Notifier notify.Notifier
	Clients  ClientFactory
	Config   config.PipelineConfig
	Logger   logger.Logger

	// TargetPace overrides the delay between targets
	TargetPace ratelimit.Limiter
}

// Runner executes jobs: it reads credentials, validates the session and
// drives an Ingestor, recording the outcome as a run.
type Runner struct {
	deps   Deps
	logger logger.Logger
}

// NewRunner creates a Runner
func NewRunner(deps Deps) *Runner {
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{Logger: log}
	}
	return &Runner{deps: deps, logger: log}
}

// Run executes job and finishes its run record. The returned error is the
// one recorded on the run; a Result is returned whenever a run id exists.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	runID := job.RunID
	if runID == 0 {
		id, err := r.deps.Runs.StartRun(ctx, job.Kind, job.Since)
		if err != nil {
			return nil, errs.AtStage(errs.StagePersistence, "", fmt.Errorf("start run: %w", err))
		}
		runID = id
	}

	log := r.logger.Tee(r.deps.Runs.RunLog(ctx, runID)).WithFields(map[string]interface{}{
		"run_id": runID,
		"kind":   string(job.Kind),
	})

	start := time.Now()
	log.Info("Run started")

	res := &Result{RunID: runID}
	runErr := r.execute(ctx, job, res, log)

	res.Status = models.RunSuccess
	errMsg := ""
	if runErr != nil {
		res.Status = models.RunError
		errMsg = runErr.Error()
	}

	fields := map[string]interface{}{
		"status":      string(res.Status),
		"new_posts":   res.Counts.NewPosts,
		"new_stories": res.Counts.NewStories,
		"duration":    time.Since(start).String(),
	}
	switch {
	case errors.Is(runErr, errs.ErrSessionIndeterminate):
		log.WithError(runErr).WarnWithFields("Run aborted, session state indeterminate", fields)
	case runErr != nil:
		log.WithError(runErr).ErrorWithFields("Run failed", fields)
	default:
		log.InfoWithFields("Run finished", fields)
	}

	// the record is finished even when the job was cancelled
	finishCtx := context.WithoutCancel(ctx)
	if err := r.deps.Runs.FinishRun(finishCtx, runID, res.Status, res.Counts, errMsg); err != nil {
		r.logger.WithError(err).WithField("run_id", runID).Error("Failed to finish run record")
		if runErr == nil {
			runErr = errs.AtStage(errs.StagePersistence, "", err)
		}
	}

	return res, runErr
}

func (r *Runner) execute(ctx context.Context, job Job, res *Result, log logger.Logger) error {
	platform := job.Kind.Platform()

	cookies, found, err := r.deps.Vault.Get(ctx, platform)
	if err != nil {
		return errs.AtStage(errs.StageVault, "", err)
	}
	if !found {
		return errs.AtStage(errs.StageVault, "", fmt.Errorf("%s: %w", platform, errs.ErrNoCredentials))
	}

	var client session.Client
	opts := IngestorOptions{
		Catalog:    r.deps.Catalog,
		Media:      r.deps.Media,
		Config:     r.deps.Config,
		TargetPace: r.deps.TargetPace,
		Logger:     log,
	}
	if platform == models.PlatformFacebook {
		fb := r.deps.Clients.Facebook(cookies, log)
		opts.Facebook = fb
		client = fb
	} else {
		ig := r.deps.Clients.Instagram(cookies, log)
		opts.Instagram = ig
		client = ig
	}

	res.Validity = client.Validate(ctx)
	switch res.Validity {
	case session.Invalid:
		return r.invalidate(ctx, platform, log)
	case session.Indeterminate:
		log.Warn("Session validity indeterminate, skipping run")
		if ctx.Err() != nil {
			return errs.AtStage(errs.StageValidation, "", ctx.Err())
		}
		return errs.AtStage(errs.StageValidation, "", errs.ErrSessionIndeterminate)
	}
	log.Info("Session valid")

	in := NewIngestor(opts)

	switch job.Kind {
	case models.RunValidate, models.RunValidateFacebook:
		return nil

	case models.RunSyncFollowing:
		res.Sync, err = in.SyncFollowing(ctx)
		return err

	case models.RunScheduled, models.RunBackfill:
		if err := r.bootstrap(ctx, in, res, log); err != nil {
			return err
		}
		if job.Kind == models.RunBackfill {
			if job.Since == nil {
				return errors.New("backfill run has no since time")
			}
			res.Counts, err = in.ScrapeAllBackfill(ctx, *job.Since)
		} else {
			res.Counts, err = in.ScrapeAll(ctx)
		}
		return err

	case models.RunGroups:
		n, err := in.ScrapeAllGroups(ctx)
		res.Counts.NewPosts = n
		return err

	default:
		return fmt.Errorf("unknown run kind %q", job.Kind)
	}
}

// invalidate marks the platform's cookies stale and alerts the operator.
// The stored blob is left untouched.
func (r *Runner) invalidate(ctx context.Context, platform models.Platform, log logger.Logger) error {
	log.Error("Session rejected, marking cookies stale")
	if err := r.deps.Vault.MarkStale(ctx, platform); err != nil {
		log.WithError(err).Error("Failed to mark cookies stale")
	}
	if err := r.deps.Notifier.OnSessionInvalid(ctx, platform); err != nil {
		log.WithError(err).Warn("Failed to send session alert")
	}
	return errs.AtStage(errs.StageValidation, "", fmt.Errorf("%s: %w", platform, errs.ErrSessionInvalid))
}

// bootstrap syncs the following list when no account is tracked yet
func (r *Runner) bootstrap(ctx context.Context, in *Ingestor, res *Result, log logger.Logger) error {
	accounts, err := r.deps.Catalog.GetAllAccounts(ctx)
	if err != nil {
		return errs.AtStage(errs.StagePersistence, "", err)
	}
	if len(accounts) > 0 {
		return nil
	}
	log.Info("No tracked accounts, syncing following list")
	res.Sync, err = in.SyncFollowing(ctx)
	return err
}
