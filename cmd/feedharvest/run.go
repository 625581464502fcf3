package main

import (
	"github.com/spf13/cobra"

	"feedharvest/pkg/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduling daemon",
	Long: `Run the daemon until interrupted. It fires the scheduled Instagram pass,
the Facebook groups pass, and picks up runs queued with --queue or
'backfill request'. At most one job per platform runs at a time.

Runs left in the running state by a previous process are marked as errors
on start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		runner, err := a.runner()
		if err != nil {
			return err
		}

		a.log.WithField("db", a.cfg.Database.Path).Info("Starting daemon")
		return scheduler.New(runner, a.catalog, a.cfg.Schedule, a.log).Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
