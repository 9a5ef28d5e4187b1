package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"rssreader/internal/api"
	"rssreader/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the sync scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Sync.Enabled {
		sched, err = scheduler.New(cfg.Sync, a.syncer, a.cleanup, logger)
		if err != nil {
			a.Close(context.Background())
			return err
		}
		sched.Start()
	} else {
		logger.Info("scheduled sync disabled")
	}

	deps := api.Dependencies{
		Store:         a.store,
		Sync:          a.syncer,
		Cleanup:       a.cleanup,
		Usage:         a.limiter,
		Subscriptions: a.client,
		Fetcher:       a.fetcher,
		Cache:         a.cache,
		Logger:        logger,
	}
	if sched != nil {
		deps.Scheduler = sched
	}
	server := api.NewServer(cfg, deps)

	logger.Info("starting rssreader",
		"version", version,
		"port", cfg.Port,
		"database", a.store.Driver(),
		"data_dir", cfg.DataDir,
		"cache_ttl", cfg.CacheTTL,
		"sync_schedule", cfg.Sync.Schedule,
		"timezone", cfg.Sync.Timezone)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal, stopping services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("HTTP server shutdown failed", "error", shutdownErr)
	}
	a.Close(shutdownCtx)

	logger.Info("rssreader stopped")
	return err
}
