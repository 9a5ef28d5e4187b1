package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rssreader/internal/models"
)

// ApplySyncBatch writes one reconciled upstream batch: resurrected tombstones
// are removed, articles are upserted and their tags rewritten. Articles with a
// pending local change keep their local read/star state.
func (s *SQLStore) ApplySyncBatch(ctx context.Context, batch SyncBatch) error {
	syncedAt := batch.SyncedAt.UTC().Truncate(time.Second)
	if batch.SyncedAt.IsZero() {
		syncedAt = s.now()
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if len(batch.Resurrected) > 0 {
			query, args, err := in(tx, `DELETE FROM deleted_articles WHERE inoreader_id IN (?)`, batch.Resurrected)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to remove tombstones: %w", err)
			}
		}

		if len(batch.Articles) == 0 {
			return nil
		}

		pending, err := pendingIDs(ctx, tx, batch.Articles)
		if err != nil {
			return err
		}

		upsertRemote := tx.Rebind(articleUpsert + `,
			is_read = excluded.is_read,
			is_starred = excluded.is_starred
		RETURNING id`)
		upsertLocal := tx.Rebind(articleUpsert + `
		RETURNING id`)
		clearTags := tx.Rebind(`DELETE FROM article_tags WHERE article_id = ?`)
		insertTag := tx.Rebind(`INSERT INTO article_tags (article_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)

		for _, a := range batch.Articles {
			var feedID *string
			if id, ok := batch.FeedIDs[a.FeedStreamID]; ok {
				feedID = &id
			} else if a.FeedID != nil {
				feedID = a.FeedID
			}

			query := upsertRemote
			if pending[a.InoreaderID] {
				query = upsertLocal
			}

			var id string
			err := tx.QueryRowxContext(ctx, query,
				uuid.NewString(), a.InoreaderID, feedID, a.Title, a.Author, a.URL, a.Content, a.Summary,
				a.Language, publishedAt(a), a.IsRead, a.IsStarred, syncedAt, syncedAt,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to upsert article %s: %w", a.InoreaderID, err)
			}

			if _, err := tx.ExecContext(ctx, clearTags, id); err != nil {
				return fmt.Errorf("failed to clear article tags: %w", err)
			}
			for _, label := range a.Labels {
				tagID, ok := batch.TagIDs[label]
				if !ok {
					continue
				}
				if _, err := tx.ExecContext(ctx, insertTag, id, tagID); err != nil {
					return fmt.Errorf("failed to tag article: %w", err)
				}
			}
		}
		return nil
	})
}

const articleUpsert = `
		INSERT INTO articles (id, inoreader_id, feed_id, title, author, url, content, summary,
			language, published_at, is_read, is_starred, last_sync_update, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (inoreader_id) DO UPDATE SET
			feed_id = excluded.feed_id,
			title = excluded.title,
			author = excluded.author,
			url = excluded.url,
			content = excluded.content,
			summary = excluded.summary,
			language = excluded.language,
			published_at = excluded.published_at,
			last_sync_update = excluded.last_sync_update`

func publishedAt(a models.Article) *time.Time {
	if a.PublishedAt == nil {
		return nil
	}
	t := a.PublishedAt.UTC().Truncate(time.Second)
	return &t
}

func pendingIDs(ctx context.Context, tx *sqlx.Tx, articles []models.Article) (map[string]bool, error) {
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.InoreaderID)
	}

	query, args, err := in(tx, `SELECT DISTINCT inoreader_id FROM sync_queue WHERE inoreader_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var pending []string
	if err := tx.SelectContext(ctx, &pending, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load pending changes: %w", err)
	}

	set := make(map[string]bool, len(pending))
	for _, id := range pending {
		set[id] = true
	}
	return set, nil
}

// TombstonedIDs returns the subset of inoreaderIDs that have a tombstone.
func (s *SQLStore) TombstonedIDs(ctx context.Context, inoreaderIDs []string) (map[string]bool, error) {
	set := make(map[string]bool)
	if len(inoreaderIDs) == 0 {
		return set, nil
	}

	query, args, err := in(s.db, `SELECT inoreader_id FROM deleted_articles WHERE inoreader_id IN (?)`, inoreaderIDs)
	if err != nil {
		return nil, err
	}
	var found []string
	if err := s.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to look up tombstones: %w", err)
	}
	for _, id := range found {
		set[id] = true
	}
	return set, nil
}

func (s *SQLStore) PurgeTombstones(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM deleted_articles WHERE deleted_at < ?`),
		olderThan.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	return rowsAffected(res), nil
}

// PendingChanges returns queued changes, oldest first.
func (s *SQLStore) PendingChanges(ctx context.Context, limit int) ([]models.QueuedChange, error) {
	changes := []models.QueuedChange{}
	err := s.db.SelectContext(ctx, &changes,
		s.db.Rebind(`SELECT id, inoreader_id, action, attempts, created_at FROM sync_queue ORDER BY created_at, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}
	return changes, nil
}

func (s *SQLStore) DeleteQueuedChanges(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := in(s.db, `DELETE FROM sync_queue WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete queued changes: %w", err)
	}
	return nil
}

func (s *SQLStore) IncrementQueueAttempts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := in(s.db, `UPDATE sync_queue SET attempts = attempts + 1 WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update queue attempts: %w", err)
	}
	return nil
}

// DropExhaustedChanges deletes queued changes that reached maxAttempts.
func (s *SQLStore) DropExhaustedChanges(ctx context.Context, maxAttempts int) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sync_queue WHERE attempts >= ?`), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to drop exhausted changes: %w", err)
	}
	return rowsAffected(res), nil
}

// PurgeOrphanedChanges deletes queued changes for articles that no longer exist.
func (s *SQLStore) PurgeOrphanedChanges(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE NOT EXISTS (SELECT 1 FROM articles a WHERE a.inoreader_id = sync_queue.inoreader_id)`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphaned changes: %w", err)
	}
	return rowsAffected(res), nil
}

// ExpiredReadArticles returns up to limit IDs of read, unstarred articles
// published (or created) before the cutoff, oldest first.
func (s *SQLStore) ExpiredReadArticles(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT id FROM articles
		WHERE is_read = TRUE AND is_starred = FALSE
			AND COALESCE(published_at, created_at) < ?
		ORDER BY COALESCE(published_at, created_at), id
		LIMIT ?`), before.UTC().Truncate(time.Second), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired articles: %w", err)
	}
	return ids, nil
}

// SurplusReadArticles returns up to limit IDs of read, unstarred articles
// ranked beyond maxPerFeed within their feed, newest first.
func (s *SQLStore) SurplusReadArticles(ctx context.Context, maxPerFeed, limit int) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT id FROM (
			SELECT id, is_read, is_starred,
				ROW_NUMBER() OVER (
					PARTITION BY feed_id
					ORDER BY COALESCE(published_at, created_at) DESC, id
				) AS rn
			FROM articles
			WHERE feed_id IS NOT NULL
		) ranked
		WHERE rn > ? AND is_read = TRUE AND is_starred = FALSE
		ORDER BY id
		LIMIT ?`), maxPerFeed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select surplus articles: %w", err)
	}
	return ids, nil
}

// DeleteArticlesWithTombstones deletes articles and records a tombstone for
// each in the same transaction.
func (s *SQLStore) DeleteArticlesWithTombstones(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := s.now()
	deleted := 0

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := in(tx, `SELECT inoreader_id, feed_id, is_read FROM articles WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		var rows []struct {
			InoreaderID string  `db:"inoreader_id"`
			FeedID      *string `db:"feed_id"`
			IsRead      bool    `db:"is_read"`
		}
		if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
			return fmt.Errorf("failed to load articles for deletion: %w", err)
		}

		insert := tx.Rebind(`
			INSERT INTO deleted_articles (inoreader_id, feed_id, was_read, deleted_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (inoreader_id) DO UPDATE SET
				feed_id = excluded.feed_id,
				was_read = excluded.was_read,
				deleted_at = excluded.deleted_at`)
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, insert, r.InoreaderID, r.FeedID, r.IsRead, now); err != nil {
				return fmt.Errorf("failed to write tombstone: %w", err)
			}
		}

		query, args, err = in(tx, `DELETE FROM articles WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete articles: %w", err)
		}
		deleted = rowsAffected(res)
		return nil
	})
	return deleted, err
}
