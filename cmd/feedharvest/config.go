package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"feedharvest/pkg/config"
	"feedharvest/pkg/scheduler"
	"feedharvest/pkg/ui"
	"feedharvest/pkg/vault"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage feedharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (FEEDHARVEST_*)
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with every option at its default value.

The file is created as '.feedharvest.yaml' in the current directory unless
a different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = ".feedharvest.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}

		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}

		out := ui.NewPrinter(os.Stdout, noColor)
		out.Success("Configuration file created: " + path)
		fmt.Println("\nNext steps:")
		fmt.Println("1. Set FEEDHARVEST_ENCRYPTION_KEY to a hex key, e.g. from 'openssl rand -hex 32'")
		fmt.Println("2. Store cookies with 'feedharvest cookies set instagram'")
		fmt.Println("3. Start the daemon with 'feedharvest run'")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		display := *cfg
		display.Vault.Key = mask(display.Vault.Key)
		display.Notifications.SMTPPassword = mask(display.Notifications.SMTPPassword)

		data, err := yaml.Marshal(&display)
		if err != nil {
			return fmt.Errorf("failed to format configuration: %w", err)
		}

		ui.NewPrinter(os.Stdout, noColor).Highlight("Current Configuration")
		fmt.Println()
		fmt.Print(string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it. Also checks
that the vault key is well formed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := ui.NewPrinter(os.Stdout, noColor)
		var warnings []string
		if cfg.Vault.Key == "" {
			warnings = append(warnings, "vault key not configured; cookies cannot be stored or read")
		} else if _, err := vault.New(vault.NewMemoryKV(), cfg.Vault.Key); err != nil {
			return err
		}
		if !cfg.Notifications.Enabled && !cfg.Notifications.Desktop {
			warnings = append(warnings, "no notifier enabled; expired cookies are only logged")
		}

		for _, w := range warnings {
			out.Warning("Warning", w)
		}
		out.Success("Configuration is valid")

		fmt.Println()
		out.Info("Database", cfg.Database.Path)
		out.Info("Media", cfg.Media.Directory)
		out.Info("Vault backend", cfg.Vault.Backend)
		if next, err := scheduler.NextRun(cfg.Schedule.Cron, time.Now()); err == nil {
			out.Info("Next scheduled run", next.Format("2006-01-02 15:04"))
		}
		if cfg.Schedule.GroupsCron != "" {
			if next, err := scheduler.NextRun(cfg.Schedule.GroupsCron, time.Now()); err == nil {
				out.Info("Next groups run", next.Format("2006-01-02 15:04"))
			}
		} else {
			out.Info("Groups run", "disabled")
		}
		out.Info("Log level", cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	default:
		return "***"
	}
}
