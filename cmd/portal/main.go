// portal - player identity repository for game servers
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ernie/portal-repository/internal/config"
	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/dependencies/clock"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/protectednames"
	"github.com/ernie/portal-repository/internal/search"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/tags"
)

var version = "dev"

const defaultConfigPath = "/etc/portal/config.yml"

var (
	configPath string
	outputJSON bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portal",
		Short: "Player identity repository for game servers",
		Long: `portal tracks the players seen across game servers: their aliases,
IP address history, protected names and activity tags.

Run "portal serve" to start the HTTP API, websocket feed, NATS ingest and
tag reconciliation. The remaining commands operate on the database directly.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default "+defaultConfigPath+" when present)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "always print JSON output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSightingCmd())
	rootCmd.AddCommand(newProtectCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newTagsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("portal %s\n", version)
		},
	})

	return rootCmd
}

// loadConfig resolves the config path and loads it. Without --config the
// default path is used when it exists; otherwise defaults and environment
// apply.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// app bundles the services shared by every command
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	clock      clock.Clock
	store      *storage.Store
	counts     *countcache.Cache
	search     *search.Service
	names      *protectednames.Registry
	tags       *tags.Service
	reconciler *tags.Reconciler
}

// openApp opens the database and count cache and wires the services.
// events receives repository events; nil discards them.
func openApp(cfg *config.Config, logger *slog.Logger, events domain.EventSink) (*app, error) {
	if events == nil {
		events = domain.NopSink{}
	}
	clk := clock.New()

	store, err := storage.New(cfg.Database.Path, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	rc := cfg.ReconcileSettings()
	if err := store.EnsureSystemTags(context.Background(), rc.ActiveTag, rc.InactiveTag); err != nil {
		store.Close()
		return nil, err
	}

	counts, err := countcache.Open(cfg.CountCache(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening count cache: %w", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		clock:      clk,
		store:      store,
		counts:     counts,
		search:     search.NewService(store, counts, logger),
		names:      protectednames.NewRegistry(store, counts, logger),
		tags:       tags.NewService(store, counts, logger),
		reconciler: tags.NewReconciler(store, counts, events, clk, rc, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.counts.Close(); err != nil {
		a.logger.Warn("closing count cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

// withApp loads config, opens the app with a stderr logger and runs fn
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	a, err := openApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}
