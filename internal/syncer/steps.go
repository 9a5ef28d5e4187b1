package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"rssreader/internal/content"
	"rssreader/internal/inoreader"
	"rssreader/internal/metrics"
	"rssreader/internal/models"
	"rssreader/internal/storage"
	"rssreader/internal/syncfilter"
)

// pushLimit caps how many queued changes are sent per sync.
const pushLimit = 1000

// stateEdit maps a queued action to the edit-tag arguments that apply it.
var stateEdit = map[models.SyncAction]struct{ add, remove string }{
	models.ActionRead:   {add: models.StateRead},
	models.ActionUnread: {remove: models.StateRead},
	models.ActionStar:   {add: models.StateStarred},
	models.ActionUnstar: {remove: models.StateStarred},
}

func (s *Service) steps(ctx context.Context, logger *slog.Logger, status *models.SyncStatus, result *models.SyncResult, maxArticles int) error {
	s.progress(status, 0, "Sync started")

	pushed, err := s.pushChanges(ctx, logger)
	if err != nil {
		return fmt.Errorf("push local changes: %w", err)
	}
	result.ChangesPushed = pushed
	s.progress(status, 10, "Local changes pushed")

	feedIDs, removed, err := s.syncSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("sync subscriptions: %w", err)
	}
	result.FeedsSynced = len(feedIDs)
	result.FeedsRemoved = removed
	s.progress(status, 25, "Subscriptions synced")

	tagIDs, err := s.syncTags(ctx)
	if err != nil {
		return fmt.Errorf("sync tags: %w", err)
	}
	result.TagsSynced = len(tagIDs)
	s.progress(status, 35, "Tags synced")

	batch, err := s.fetchArticles(ctx, logger, maxArticles)
	if err != nil {
		return fmt.Errorf("fetch articles: %w", err)
	}
	result.ArticlesFetched = len(batch)
	s.progress(status, 60, "Articles fetched")

	if err := s.storeArticles(ctx, batch, feedIDs, tagIDs, result); err != nil {
		return fmt.Errorf("store articles: %w", err)
	}
	s.progress(status, 75, "Articles stored")

	counts, err := s.upstream.UnreadCounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch unread counts: %w", err)
	}
	if err := s.store.UpdateUnreadCounts(ctx, counts); err != nil {
		return fmt.Errorf("update unread counts: %w", err)
	}
	s.progress(status, 90, "Unread counts updated")

	return nil
}

// pushChanges sends queued local state changes upstream. A failed batch stays
// queued with its attempt count raised; it does not fail the sync.
func (s *Service) pushChanges(ctx context.Context, logger *slog.Logger) (int, error) {
	changes, err := s.store.PendingChanges(ctx, pushLimit)
	if err != nil {
		return 0, err
	}

	byAction := make(map[models.SyncAction][]models.QueuedChange)
	for _, c := range changes {
		byAction[c.Action] = append(byAction[c.Action], c)
	}

	pushed := 0
	for action, group := range byAction {
		edit, ok := stateEdit[action]
		if !ok {
			logger.Warn("dropping queued change with unknown action", "action", action)
			if err := s.store.DeleteQueuedChanges(ctx, queueIDs(group)); err != nil {
				return pushed, err
			}
			continue
		}

		for start := 0; start < len(group); start += inoreader.MaxEditTagIDs {
			chunk := group[start:min(start+inoreader.MaxEditTagIDs, len(group))]

			err := s.upstream.EditTag(ctx, articleIDs(chunk), edit.add, edit.remove)
			if err != nil {
				if ctx.Err() != nil {
					return pushed, ctx.Err()
				}
				logger.Warn("failed to push queued changes",
					"action", action,
					"count", len(chunk),
					"error", err)
				if err := s.store.IncrementQueueAttempts(ctx, queueIDs(chunk)); err != nil {
					return pushed, err
				}
				continue
			}

			if err := s.store.DeleteQueuedChanges(ctx, queueIDs(chunk)); err != nil {
				return pushed, err
			}
			pushed += len(chunk)
		}
	}

	dropped, err := s.store.DropExhaustedChanges(ctx, s.cfg.MaxQueueAttempts)
	if err != nil {
		return pushed, err
	}
	if dropped > 0 {
		logger.Warn("dropped queued changes after repeated failures",
			"count", dropped,
			"max_attempts", s.cfg.MaxQueueAttempts)
	}

	return pushed, nil
}

func (s *Service) syncSubscriptions(ctx context.Context) (map[string]string, int, error) {
	subs, err := s.upstream.Subscriptions(ctx)
	if err != nil {
		return nil, 0, err
	}

	feeds := make([]models.Feed, 0, len(subs))
	keep := make([]string, 0, len(subs))
	for _, sub := range subs {
		feeds = append(feeds, sub.ToFeed())
		keep = append(keep, sub.ID)
	}

	ids, err := s.store.UpsertFeeds(ctx, feeds)
	if err != nil {
		return nil, 0, err
	}

	removed, err := s.store.DeleteFeedsNotIn(ctx, keep)
	if err != nil {
		return nil, 0, err
	}
	return ids, removed, nil
}

func (s *Service) syncTags(ctx context.Context) (map[string]string, error) {
	upstreamTags, err := s.upstream.Tags(ctx)
	if err != nil {
		return nil, err
	}

	tags := make([]models.Tag, 0, len(upstreamTags))
	for _, t := range upstreamTags {
		tags = append(tags, models.Tag{InoreaderID: t.ID, Name: t.Name()})
	}
	return s.store.UpsertTags(ctx, tags)
}

// fetchArticles pages through the reading list until maxArticles items are
// collected or the stream ends.
func (s *Service) fetchArticles(ctx context.Context, logger *slog.Logger, maxArticles int) ([]models.Article, error) {
	var (
		articles     []models.Article
		continuation string
		seen         = make(map[string]bool)
	)

	for len(articles) < maxArticles {
		page, err := s.upstream.StreamContents(ctx, models.StreamReadingList, inoreader.StreamOptions{
			Count:        min(s.cfg.PageSize, maxArticles-len(articles)),
			Continuation: continuation,
		})
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.ID == "" || seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			articles = append(articles, item.ToArticle())
		}
		logger.Debug("fetched stream page", "items", len(page.Items), "total", len(articles))

		if page.Continuation == "" || len(page.Items) == 0 {
			break
		}
		continuation = page.Continuation
	}

	if len(articles) > maxArticles {
		articles = articles[:maxArticles]
	}
	return articles, nil
}

func (s *Service) storeArticles(ctx context.Context, batch []models.Article, feedIDs, tagIDs map[string]string, result *models.SyncResult) error {
	tombstones, err := s.store.TombstonedIDs(ctx, syncfilter.IDs(batch))
	if err != nil {
		return err
	}

	reconciled := syncfilter.Reconcile(batch, tombstones)
	result.ArticlesAdmitted = len(reconciled.Admitted)
	result.ArticlesSkipped = len(reconciled.Skipped)
	result.ArticlesResurrected = len(reconciled.Resurrected)
	metrics.RecordReconcile(result.ArticlesAdmitted, result.ArticlesSkipped, result.ArticlesResurrected)

	if len(reconciled.Admitted) == 0 && len(reconciled.Resurrected) == 0 {
		return nil
	}

	return s.store.ApplySyncBatch(ctx, storage.SyncBatch{
		Articles:    content.PrepareBatch(reconciled.Admitted),
		Resurrected: reconciled.Resurrected,
		FeedIDs:     feedIDs,
		TagIDs:      tagIDs,
		SyncedAt:    s.now().UTC(),
	})
}

func queueIDs(changes []models.QueuedChange) []string {
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ID
	}
	return ids
}

func articleIDs(changes []models.QueuedChange) []string {
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.InoreaderID
	}
	return ids
}
