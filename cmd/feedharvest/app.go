package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"feedharvest/pkg/catalog"
	"feedharvest/pkg/config"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/media"
	"feedharvest/pkg/notify"
	"feedharvest/pkg/pipeline"
	"feedharvest/pkg/ui"
	"feedharvest/pkg/vault"
)

// app holds what most commands need: configuration, logging, the catalog
// and a printer. The vault and runner are built on demand since they need
// the encryption key.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	catalog *catalog.Catalog
	out     *ui.Printer
}

func loadConfig() (*config.Config, error) {
	flags := map[string]interface{}{
		"db":        dbPath,
		"media":     mediaDir,
		"key":       vaultKey,
		"log-level": logLevel,
		"log-file":  logFile,
	}
	return config.Load(configFile, flags)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	cat, err := catalog.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		catalog: cat,
		out:     ui.NewPrinter(os.Stdout, noColor),
	}, nil
}

func (a *app) Close() error {
	return a.catalog.Close()
}

func (a *app) vault() (*vault.Vault, error) {
	var kv vault.KV = a.catalog
	if a.cfg.Vault.Backend == "keyring" {
		k, err := vault.NewKeyringKV(a.cfg.Vault.KeyringService)
		if err != nil {
			return nil, err
		}
		kv = k
	}
	if a.cfg.Vault.Key == "" {
		return nil, errors.New("vault key missing: set FEEDHARVEST_ENCRYPTION_KEY or pass --key")
	}
	return vault.New(kv, a.cfg.Vault.Key)
}

func (a *app) runner() (*pipeline.Runner, error) {
	v, err := a.vault()
	if err != nil {
		return nil, err
	}
	fetcher, err := media.NewFetcher(a.cfg.Media, a.log)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.FromConfig(a.cfg.Notifications, a.log)
	if err != nil {
		return nil, err
	}

	return pipeline.NewRunner(pipeline.Deps{
		Catalog:  a.catalog,
		Runs:     a.catalog,
		Vault:    v,
		Media:    fetcher,
		Notifier: notifier,
		Clients:  pipeline.NewClientFactory(a.cfg),
		Config:   a.cfg.Pipeline,
		Logger:   a.log,
	}), nil
}

// parseSince accepts a date or an RFC 3339 timestamp, in UTC
func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --since %q: use YYYY-MM-DD or RFC 3339", s)
}
