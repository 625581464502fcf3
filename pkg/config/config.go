package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FEEDHARVEST_"

// Config holds all configuration options for the harvester
type Config struct {
	Database      DatabaseConfig     `yaml:"database" json:"database"`
	Media         MediaConfig        `yaml:"media" json:"media"`
	Vault         VaultConfig        `yaml:"vault" json:"vault"`
	Instagram     PlatformConfig     `yaml:"instagram" json:"instagram"`
	Facebook      PlatformConfig     `yaml:"facebook" json:"facebook"`
	Pipeline      PipelineConfig     `yaml:"pipeline" json:"pipeline"`
	Schedule      ScheduleConfig     `yaml:"schedule" json:"schedule"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// DatabaseConfig points at the SQLite catalog
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// MediaConfig holds media download settings
type MediaConfig struct {
	Directory string        `yaml:"directory" json:"directory"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// VaultConfig selects where encrypted cookies are kept
type VaultConfig struct {
	// Key is the operator-supplied hex key
	Key string `yaml:"key" json:"-"`
	// Backend is "catalog" or "keyring"
	Backend        string `yaml:"backend" json:"backend"`
	KeyringService string `yaml:"keyring_service" json:"keyring_service"`
}

// PlatformConfig tunes the request primitive for one platform
type PlatformConfig struct {
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// Politeness delay drawn before every logical request
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Delay between pages of the same feed
	PageMinDelay time.Duration `yaml:"page_min_delay" json:"page_min_delay"`
	PageMaxDelay time.Duration `yaml:"page_max_delay" json:"page_max_delay"`

	MaxAttempts        int           `yaml:"max_attempts" json:"max_attempts"`
	RateLimitBackoff   time.Duration `yaml:"rate_limit_backoff" json:"rate_limit_backoff"`
	RateLimitJitter    time.Duration `yaml:"rate_limit_jitter" json:"rate_limit_jitter"`
	ServerErrorBackoff time.Duration `yaml:"server_error_backoff" json:"server_error_backoff"`
	ServerErrorJitter  time.Duration `yaml:"server_error_jitter" json:"server_error_jitter"`
}

// PipelineConfig holds ingestion limits and target pacing
type PipelineConfig struct {
	PostsPerAccount int  `yaml:"posts_per_account" json:"posts_per_account"`
	BackfillPosts   int  `yaml:"backfill_posts" json:"backfill_posts"`
	GroupPostLimit  int  `yaml:"group_post_limit" json:"group_post_limit"`
	CommentsPerPost int  `yaml:"comments_per_post" json:"comments_per_post"`
	IncludeStories  bool `yaml:"include_stories" json:"include_stories"`

	// Delay between targets, wider than the paging delay
	TargetMinDelay time.Duration `yaml:"target_min_delay" json:"target_min_delay"`
	TargetMaxDelay time.Duration `yaml:"target_max_delay" json:"target_max_delay"`
}

// ScheduleConfig drives the daemon triggers
type ScheduleConfig struct {
	// Cron and GroupsCron are standard five-field crontab specs in local
	// time; an empty GroupsCron disables the groups trigger.
	Cron            string        `yaml:"cron" json:"cron"`
	GroupsCron      string        `yaml:"groups_cron" json:"groups_cron"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	StaleRunTimeout time.Duration `yaml:"stale_run_timeout" json:"stale_run_timeout"`
	RunOnStart      bool          `yaml:"run_on_start" json:"run_on_start"`
}

// NotificationConfig holds operator alert settings
type NotificationConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	SMTPHost     string   `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port" json:"smtp_port"`
	SMTPUsername string   `yaml:"smtp_username" json:"smtp_username"`
	SMTPPassword string   `yaml:"smtp_password" json:"-"`
	From         string   `yaml:"from" json:"from"`
	Recipients   []string `yaml:"recipients" json:"recipients"`

	// Desktop also raises a local desktop notification
	Desktop bool `yaml:"desktop" json:"desktop"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "./data/feedharvest.db",
		},
		Media: MediaConfig{
			Directory: "./data/media",
			Timeout:   120 * time.Second,
			UserAgent: defaultUserAgent,
		},
		Vault: VaultConfig{
			Backend:        "catalog",
			KeyringService: "feedharvest",
		},
		Instagram: PlatformConfig{
			UserAgent:          defaultUserAgent,
			Timeout:            30 * time.Second,
			MinDelay:           1 * time.Second,
			MaxDelay:           3 * time.Second,
			PageMinDelay:       3 * time.Second,
			PageMaxDelay:       8 * time.Second,
			MaxAttempts:        4,
			RateLimitBackoff:   60 * time.Second,
			RateLimitJitter:    5 * time.Second,
			ServerErrorBackoff: 5 * time.Second,
			ServerErrorJitter:  5 * time.Second,
		},
		Facebook: PlatformConfig{
			UserAgent:          defaultUserAgent,
			Timeout:            30 * time.Second,
			MinDelay:           5 * time.Second,
			MaxDelay:           10 * time.Second,
			PageMinDelay:       5 * time.Second,
			PageMaxDelay:       10 * time.Second,
			MaxAttempts:        3,
			RateLimitBackoff:   60 * time.Second,
			RateLimitJitter:    30 * time.Second,
			ServerErrorBackoff: 10 * time.Second,
			ServerErrorJitter:  10 * time.Second,
		},
		Pipeline: PipelineConfig{
			PostsPerAccount: 20,
			BackfillPosts:   200,
			GroupPostLimit:  10,
			CommentsPerPost: 3,
			IncludeStories:  true,
			TargetMinDelay:  5 * time.Second,
			TargetMaxDelay:  15 * time.Second,
		},
		Schedule: ScheduleConfig{
			Cron:            "0 8 * * *",
			GroupsCron:      "0 */6 * * *",
			PollInterval:    30 * time.Second,
			StaleRunTimeout: time.Hour,
			RunOnStart:      true,
		},
		Notifications: NotificationConfig{
			Enabled:  false,
			SMTPPort: 587,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("DATABASE_PATH", &c.Database.Path)
	str("MEDIA_PATH", &c.Media.Directory)
	str("ENCRYPTION_KEY", &c.Vault.Key)
	str("VAULT_BACKEND", &c.Vault.Backend)
	str("IG_USER_AGENT", &c.Instagram.UserAgent)
	str("FB_USER_AGENT", &c.Facebook.UserAgent)
	num("POSTS_PER_ACCOUNT", &c.Pipeline.PostsPerAccount)
	num("GROUP_POST_LIMIT", &c.Pipeline.GroupPostLimit)
	dur("TARGET_MIN_DELAY", &c.Pipeline.TargetMinDelay)
	dur("TARGET_MAX_DELAY", &c.Pipeline.TargetMaxDelay)
	str("CRON_SCHEDULE", &c.Schedule.Cron)
	str("GROUPS_CRON_SCHEDULE", &c.Schedule.GroupsCron)
	dur("POLL_INTERVAL", &c.Schedule.PollInterval)
	str("SMTP_HOST", &c.Notifications.SMTPHost)
	num("SMTP_PORT", &c.Notifications.SMTPPort)
	str("SMTP_USERNAME", &c.Notifications.SMTPUsername)
	str("SMTP_PASSWORD", &c.Notifications.SMTPPassword)
	str("EMAIL_FROM", &c.Notifications.From)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(envPrefix + "EMAIL_RECIPIENT"); v != "" {
		c.Notifications.Recipients = splitList(v)
		c.Notifications.Enabled = true
	}
	if v := os.Getenv(envPrefix + "NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv(envPrefix + "DESKTOP_NOTIFICATIONS"); v != "" {
		c.Notifications.Desktop = strings.ToLower(v) == "true"
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".feedharvest.yaml",
		".feedharvest.yml",
		filepath.Join(home, ".config", "feedharvest", "config.yaml"),
		filepath.Join(home, ".config", "feedharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Media.Directory == "" {
		errs = append(errs, errors.New("media directory is required"))
	}

	switch c.Vault.Backend {
	case "catalog", "keyring":
	default:
		errs = append(errs, fmt.Errorf("unknown vault backend %q", c.Vault.Backend))
	}

	errs = append(errs, c.Instagram.validate("instagram")...)
	errs = append(errs, c.Facebook.validate("facebook")...)

	if c.Pipeline.PostsPerAccount <= 0 {
		errs = append(errs, errors.New("posts per account must be positive"))
	}
	if c.Pipeline.GroupPostLimit <= 0 {
		errs = append(errs, errors.New("group post limit must be positive"))
	}
	if c.Pipeline.CommentsPerPost < 0 {
		errs = append(errs, errors.New("comments per post cannot be negative"))
	}
	if c.Pipeline.TargetMaxDelay < c.Pipeline.TargetMinDelay {
		errs = append(errs, errors.New("target max delay is below target min delay"))
	}

	if c.Schedule.Cron == "" {
		errs = append(errs, errors.New("schedule cron is required"))
	} else if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("invalid schedule cron %q: %w", c.Schedule.Cron, err))
	}
	if c.Schedule.GroupsCron != "" {
		if _, err := cron.ParseStandard(c.Schedule.GroupsCron); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule groups_cron %q: %w", c.Schedule.GroupsCron, err))
		}
	}
	if c.Schedule.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}

	if c.Notifications.Enabled {
		if c.Notifications.SMTPHost == "" {
			errs = append(errs, errors.New("smtp host is required when notifications are enabled"))
		}
		if len(c.Notifications.Recipients) == 0 {
			errs = append(errs, errors.New("at least one recipient is required when notifications are enabled"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (p PlatformConfig) validate(name string) []error {
	var errs []error
	if p.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%s max attempts must be positive", name))
	}
	if p.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s timeout must be positive", name))
	}
	if p.MaxDelay < p.MinDelay {
		errs = append(errs, fmt.Errorf("%s max delay is below min delay", name))
	}
	if p.PageMaxDelay < p.PageMinDelay {
		errs = append(errs, fmt.Errorf("%s page max delay is below page min delay", name))
	}
	return errs
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if db, ok := flags["db"].(string); ok && db != "" {
		c.Database.Path = db
	}
	if media, ok := flags["media"].(string); ok && media != "" {
		c.Media.Directory = media
	}
	if key, ok := flags["key"].(string); ok && key != "" {
		c.Vault.Key = key
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".feedharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
