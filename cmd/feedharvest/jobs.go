package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"feedharvest/pkg/models"
	"feedharvest/pkg/pipeline"
)

var (
	queueJob  bool
	sinceFlag string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every tracked Instagram account once",
	Long: `Run one scheduled pass over the tracked Instagram accounts: recent posts
and, when enabled, stories. With --since the pass becomes a backfill that
walks each feed back to the given date.

When no account is tracked yet, the session's following list is synced
first.`,
	Example: `  # Regular pass
  feedharvest scrape

  # Backfill everything since March 1st
  feedharvest scrape --since 2025-03-01

  # Let the running daemon pick the job up
  feedharvest scrape --queue`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(sinceFlag)
		if err != nil {
			return err
		}
		kind := models.RunScheduled
		if since != nil {
			kind = models.RunBackfill
		}
		return runJob(cmd, kind, since)
	},
}

var syncFollowingCmd = &cobra.Command{
	Use:   "sync-following",
	Short: "Reconcile tracked accounts with the session's following list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, models.RunSyncFollowing, nil)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <instagram|facebook>",
	Short: "Check whether stored cookies are still accepted",
	Long: `Probe the platform with the stored cookies. A definitive rejection marks
the cookies stale and alerts the operator; throttling or network trouble
leaves them untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := models.ParsePlatform(args[0])
		if err != nil {
			return err
		}
		kind := models.RunValidate
		if platform == models.PlatformFacebook {
			kind = models.RunValidateFacebook
		}
		return runJob(cmd, kind, nil)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Manage backfill runs",
}

var backfillRequestCmd = &cobra.Command{
	Use:     "request",
	Short:   "Queue a backfill run for the daemon",
	Example: `  feedharvest backfill request --since 2025-01-01`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(sinceFlag)
		if err != nil {
			return err
		}
		if since == nil {
			return fmt.Errorf("--since is required")
		}
		queueJob = true
		return runJob(cmd, models.RunBackfill, since)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd, syncFollowingCmd, validateCmd, backfillCmd)
	backfillCmd.AddCommand(backfillRequestCmd)

	scrapeCmd.Flags().StringVar(&sinceFlag, "since", "", "backfill back to this date (YYYY-MM-DD or RFC 3339)")
	backfillRequestCmd.Flags().StringVar(&sinceFlag, "since", "", "backfill back to this date (YYYY-MM-DD or RFC 3339)")
	for _, c := range []*cobra.Command{scrapeCmd, syncFollowingCmd, validateCmd, groupsCmd} {
		c.Flags().BoolVar(&queueJob, "queue", false, "queue the job for the running daemon instead of running it here")
	}
}

// runJob runs kind in this process, or queues it as a pending run
func runJob(cmd *cobra.Command, kind models.RunKind, since *time.Time) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if queueJob {
		id, err := a.catalog.RequestRun(ctx, kind, since)
		if err != nil {
			return err
		}
		a.out.Success(fmt.Sprintf("Queued %s run #%d", kind, id))
		return nil
	}

	runner, err := a.runner()
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, pipeline.Job{Kind: kind, Since: since})
	if res != nil {
		a.out.Info("Run", "#"+strconv.FormatInt(res.RunID, 10))
		a.out.Info("Session", res.Validity.String())
		if res.Sync.Total > 0 {
			a.out.Info("Following", fmt.Sprintf("%d tracked, %d added, %d pruned", res.Sync.Total, res.Sync.Added, res.Sync.Pruned))
		}
		if kind != models.RunValidate && kind != models.RunValidateFacebook && kind != models.RunSyncFollowing {
			a.out.Info("New posts", strconv.Itoa(res.Counts.NewPosts))
			if kind != models.RunGroups {
				a.out.Info("New stories", strconv.Itoa(res.Counts.NewStories))
			}
		}
	}
	if err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("%s run finished", kind))
	return nil
}
