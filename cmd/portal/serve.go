package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ernie/portal-repository/internal/api"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/tags"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the repository server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// runServe starts every long-running component and shuts them down in
// reverse order on SIGINT or SIGTERM
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	logger.Info("portal starting", "version", version)

	hub := api.NewWebSocketHub(logger)
	a, err := openApp(cfg, logger, hub)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("database initialized", "path", cfg.Database.Path, "cache", cfg.Cache.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	job := tags.NewJob(a.reconciler, cfg.Reconcile.Interval, logger)

	router := api.NewRouter(api.RouterConfig{
		Store:  a.store,
		Search: a.search,
		Names:  a.names,
		Tags:   a.tags,
		Job:    job,
		Counts: a.counts,
		Hub:    hub,
		Clock:  a.clock,
		Logger: logger,
	})

	var subscriber *ingest.Subscriber
	if cfg.Ingest.NATSURL != "" {
		subscriber = ingest.NewSubscriber(cfg.IngestSettings(), a.store, a.counts, hub, a.clock, logger)
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("starting ingest: %w", err)
		}
	} else {
		logger.Info("ingest disabled, no NATS URL configured")
	}

	job.Start(ctx)
	logger.Info("tag reconciliation scheduled", "interval", cfg.Reconcile.Interval)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
	}

	// Sequential shutdown
	logger.Info("shutting down HTTP server")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}

	if subscriber != nil {
		logger.Info("draining ingest subscriber")
		subscriber.Stop()
	}

	logger.Info("stopping tag reconciliation")
	job.Stop()

	cancel()
	<-hubDone
	logger.Info("shutdown complete")
	return runErr
}
