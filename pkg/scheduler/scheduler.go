package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
	"feedharvest/pkg/pipeline"
)

// JobRunner executes one pipeline job
type JobRunner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
}

// RunQueue is the run-record storage the scheduler polls
type RunQueue interface {
	ResetStaleRuns(ctx context.Context, timeout time.Duration) (int64, error)
	PendingRuns(ctx context.Context) ([]models.RunRecord, error)
	ClaimRun(ctx context.Context, id int64) (bool, error)
}

// Scheduler fires scheduled, group and operator-requested runs. At most one
// job per platform runs at a time.
type Scheduler struct {
	runner JobRunner
	queue  RunQueue
	cfg    config.ScheduleConfig
	locks  map[models.Platform]*semaphore.Weighted
	jobs   sync.WaitGroup
	logger logger.Logger
}

// New creates a Scheduler
func New(runner JobRunner, queue RunQueue, cfg config.ScheduleConfig, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{
		runner: runner,
		queue:  queue,
		cfg:    cfg,
		locks: map[models.Platform]*semaphore.Weighted{
			models.PlatformInstagram: semaphore.NewWeighted(1),
			models.PlatformFacebook:  semaphore.NewWeighted(1),
		},
		logger: log.WithField("component", "scheduler"),
	}
}

// Start resets runs abandoned by an earlier process, registers the cron
// triggers and polls for requested runs until ctx is cancelled. It returns
// once every job it started has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	n, err := s.queue.ResetStaleRuns(ctx, s.cfg.StaleRunTimeout)
	if err != nil {
		return fmt.Errorf("reset stale runs: %w", err)
	}
	if n > 0 {
		s.logger.WithField("count", n).Warn("Reset stale runs")
	}

	c := cron.New(
		cron.WithLogger(cronLogger{log: s.logger}),
		cron.WithLocation(time.Local),
	)
	triggers := []struct {
		spec string
		kind models.RunKind
	}{
		{s.cfg.Cron, models.RunScheduled},
		{s.cfg.GroupsCron, models.RunGroups},
	}
	for _, t := range triggers {
		if t.spec == "" {
			continue
		}
		kind := t.kind
		if _, err := c.AddFunc(t.spec, func() { s.fire(ctx, kind) }); err != nil {
			return fmt.Errorf("invalid cron spec %q for %s: %w", t.spec, kind, err)
		}
	}

	s.logger.InfoWithFields("Scheduler started", map[string]interface{}{
		"cron":          s.cfg.Cron,
		"groups_cron":   s.cfg.GroupsCron,
		"poll_interval": s.cfg.PollInterval.String(),
	})
	c.Start()

	g, gCtx := errgroup.WithContext(ctx)
	if s.cfg.RunOnStart {
		g.Go(func() error {
			s.fire(gCtx, models.RunScheduled)
			return nil
		})
	}
	g.Go(func() error { return s.pollLoop(gCtx) })
	err = g.Wait()

	<-c.Stop().Done()
	s.jobs.Wait()

	s.logger.Info("Scheduler stopped")
	return err
}

// Trigger runs job now unless its platform is busy, in which case it
// returns ErrJobBusy without running anything.
func (s *Scheduler) Trigger(ctx context.Context, job pipeline.Job) (*pipeline.Result, error) {
	lock := s.locks[job.Kind.Platform()]
	if !lock.TryAcquire(1) {
		return nil, fmt.Errorf("%s: %w", job.Kind, errs.ErrJobBusy)
	}
	defer lock.Release(1)
	return s.runner.Run(ctx, job)
}

// PollOnce claims requested runs, oldest first, and starts each one whose
// platform is free. Runs for a busy platform stay pending for the next
// poll. It returns the number of runs started; Wait blocks until they end.
func (s *Scheduler) PollOnce(ctx context.Context) (int, error) {
	pending, err := s.queue.PendingRuns(ctx)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, rec := range pending {
		lock := s.locks[rec.Kind.Platform()]
		if !lock.TryAcquire(1) {
			s.logger.WithField("run_id", rec.ID).Debug("Platform busy, leaving run pending")
			continue
		}

		claimed, err := s.queue.ClaimRun(ctx, rec.ID)
		if err != nil {
			lock.Release(1)
			return started, err
		}
		if !claimed {
			lock.Release(1)
			continue
		}

		job := pipeline.Job{Kind: rec.Kind, Since: rec.Since, RunID: rec.ID}
		started++
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			defer lock.Release(1)
			_, err := s.runner.Run(ctx, job)
			s.logOutcome(job.Kind, err)
		}()
	}
	return started, nil
}

// Wait blocks until every run started by PollOnce has finished
func (s *Scheduler) Wait() {
	s.jobs.Wait()
}

func (s *Scheduler) fire(ctx context.Context, kind models.RunKind) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.Trigger(ctx, pipeline.Job{Kind: kind})
	if errors.Is(err, errs.ErrJobBusy) {
		s.logger.WithField("kind", string(kind)).Warn("Previous run still active, skipping trigger")
		return
	}
	s.logOutcome(kind, err)
}

func (s *Scheduler) logOutcome(kind models.RunKind, err error) {
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrSessionIndeterminate):
		s.logger.WithError(err).WithField("kind", string(kind)).Warn("Run aborted, session state indeterminate")
	default:
		s.logger.WithError(err).WithField("kind", string(kind)).Error("Run failed")
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) error {
	if s.cfg.PollInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Polling requested runs failed")
			}
		}
	}
}

// NextRun returns the first activation of a five-field cron spec after now
func NextRun(spec string, now time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return sched.Next(now), nil
}

// cronLogger routes the cron library's logging into logger.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) fields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.DebugWithFields("cron: "+msg, l.fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).ErrorWithFields("cron: "+msg, l.fields(keysAndValues))
}
