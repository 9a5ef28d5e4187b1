// Package cleanup enforces the article retention policy.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rssreader/internal/cache"
	"rssreader/internal/config"
	"rssreader/internal/metrics"
	"rssreader/internal/models"
	"rssreader/internal/storage"
)

type Service struct {
	store  storage.Store
	cache  *cache.Manager
	cfg    config.RetentionConfig
	logger *slog.Logger
	now    func() time.Time
}

func New(store storage.Store, cacheManager *cache.Manager, cfg config.RetentionConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DeleteChunkSize <= 0 {
		cfg.DeleteChunkSize = 200
	}
	return &Service{
		store:  store,
		cache:  cacheManager,
		cfg:    cfg,
		logger: logger.With("component", "cleanup"),
		now:    time.Now,
	}
}

// Run deletes read articles past retention and read articles beyond the
// per-feed cap, leaving a tombstone for each, then purges old tombstones and
// orphaned queue entries. Deletes run in chunks so a large backlog never holds
// one long transaction.
func (s *Service) Run(ctx context.Context) (models.CleanupResult, error) {
	result := models.CleanupResult{StartedAt: s.now().UTC()}
	s.logger.Info("cleanup started")

	if s.cfg.ReadArticleRetention > 0 {
		cutoff := result.StartedAt.Add(-s.cfg.ReadArticleRetention)
		err := s.deleteInChunks(ctx, &result, func(ctx context.Context) ([]string, error) {
			return s.store.ExpiredReadArticles(ctx, cutoff, s.cfg.DeleteChunkSize)
		})
		if err != nil {
			return result, fmt.Errorf("delete expired articles: %w", err)
		}
	}

	if s.cfg.MaxArticlesPerFeed > 0 {
		err := s.deleteInChunks(ctx, &result, func(ctx context.Context) ([]string, error) {
			return s.store.SurplusReadArticles(ctx, s.cfg.MaxArticlesPerFeed, s.cfg.DeleteChunkSize)
		})
		if err != nil {
			return result, fmt.Errorf("delete surplus articles: %w", err)
		}
	}

	if s.cfg.TombstoneRetention > 0 {
		purged, err := s.store.PurgeTombstones(ctx, result.StartedAt.Add(-s.cfg.TombstoneRetention))
		if err != nil {
			return result, fmt.Errorf("purge tombstones: %w", err)
		}
		result.TombstonesPurged = purged
	}

	orphans, err := s.store.PurgeOrphanedChanges(ctx)
	if err != nil {
		return result, fmt.Errorf("purge orphaned queue entries: %w", err)
	}
	result.QueueEntriesPurged = orphans

	result.FinishedAt = s.now().UTC()
	metrics.RecordCleanup(result.ArticlesDeleted, result.TombstonesPurged)

	if err := s.store.SetMetadata(ctx, map[string]string{
		storage.MetaLastCleanup: result.FinishedAt.Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn("failed to record cleanup time", "error", err)
	}
	if s.cache != nil && result.ArticlesDeleted > 0 {
		s.cache.InvalidateArticles()
	}

	s.logger.Info("cleanup completed",
		"deleted", result.ArticlesDeleted,
		"chunks", result.Chunks,
		"tombstones_purged", result.TombstonesPurged,
		"queue_purged", result.QueueEntriesPurged,
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

// deleteInChunks repeatedly selects up to one chunk of IDs and deletes them
// until the selector returns nothing.
func (s *Service) deleteInChunks(ctx context.Context, result *models.CleanupResult, next func(context.Context) ([]string, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := next(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		deleted, err := s.store.DeleteArticlesWithTombstones(ctx, ids)
		if err != nil {
			return err
		}
		result.ArticlesDeleted += deleted
		result.Chunks++
		s.logger.Debug("deleted article chunk", "count", deleted)

		// Guard against a selector that keeps returning rows it cannot delete.
		if deleted == 0 {
			return nil
		}
	}
}
