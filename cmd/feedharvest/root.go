package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"feedharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	dbPath     string
	mediaDir   string
	vaultKey   string
	noColor    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedharvest",
	Short: "Harvest Instagram and Facebook group content with browser sessions",
	Long: `feedharvest archives posts, reels and stories from the Instagram accounts a
session follows, and posts from tracked Facebook groups, into a local SQLite
catalog with downloaded media.

Session cookies are kept encrypted. When a platform rejects them the cookies
are marked stale and the operator is alerted.

Run 'feedharvest run' for the scheduling daemon, or trigger single jobs with
'scrape', 'groups', 'sync-following' and 'validate'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and runs it until
// completion or an interrupt.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.NewPrinter(os.Stderr, noColor).Error("Error", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.feedharvest.yaml or ~/.config/feedharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path of the SQLite catalog")
	rootCmd.PersistentFlags().StringVar(&mediaDir, "media", "", "directory for downloaded media")
	rootCmd.PersistentFlags().StringVar(&vaultKey, "key", "", "hex vault key (prefer FEEDHARVEST_ENCRYPTION_KEY)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetVersionTemplate(`feedharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
