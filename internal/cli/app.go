package cli

import (
	"context"
	"errors"
	"fmt"

	"rssreader/internal/cache"
	"rssreader/internal/cleanup"
	"rssreader/internal/content"
	"rssreader/internal/inoreader"
	"rssreader/internal/ratelimit"
	"rssreader/internal/storage"
	"rssreader/internal/syncer"
)

// app holds the services shared by the commands.
type app struct {
	store   *storage.SQLStore
	cache   *cache.Manager
	limiter *ratelimit.Limiter
	client  *inoreader.Client
	fetcher *content.Fetcher
	syncer  *syncer.Service
	cleanup *cleanup.Service
}

// newApp opens storage and builds every service. When requireUpstream is
// false a missing Inoreader token is logged, and upstream calls fail with an
// authorization error until a token is stored.
func newApp(ctx context.Context, requireUpstream bool) (*app, error) {
	store, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		store: store,
		cache: cache.NewManager(cfg.CacheTTL),
		limiter: ratelimit.New(store, ratelimit.Config{
			Zone1DailyLimit:     cfg.RateLimit.Zone1DailyLimit,
			Zone2DailyLimit:     cfg.RateLimit.Zone2DailyLimit,
			SafetyBufferPercent: cfg.RateLimit.SafetyBufferPercent,
		}, logger),
		fetcher: content.NewFetcher(cfg.Inoreader.RequestTimeout, logger),
	}

	httpClient, err := inoreader.NewHTTPClient(ctx, cfg.Inoreader, store, logger)
	if err != nil {
		if requireUpstream || !errors.Is(err, inoreader.ErrUnauthorized) {
			store.Close()
			return nil, err
		}
		logger.Warn("Inoreader is not authorized, sync is unavailable until a token is stored", "error", err)
		httpClient = inoreader.NewDeferredHTTPClient(ctx, cfg.Inoreader, store, logger)
	}

	a.client = inoreader.NewClient(cfg.Inoreader, httpClient, a.limiter, logger)
	a.syncer = syncer.New(store, a.client, a.limiter, a.cache, cfg.Sync, cfg.Auth.OwnerID, logger)
	a.cleanup = cleanup.New(store, a.cache, cfg.Retention, logger)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.syncer.Shutdown(ctx); err != nil {
		logger.Warn("sync did not stop in time", "error", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close storage", "error", err)
	}
}
