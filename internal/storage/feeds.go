package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rssreader/internal/models"
)

const feedColumns = `id, inoreader_id, title, url, site_url, icon_url, folder, unread_count, created_at, updated_at`

func (s *SQLStore) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	feeds := []models.Feed{}
	err := s.db.SelectContext(ctx, &feeds, `SELECT `+feedColumns+` FROM feeds ORDER BY folder, title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

func (s *SQLStore) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	feed := &models.Feed{}
	err := s.db.GetContext(ctx, feed, s.db.Rebind(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err)
	}
	return feed, nil
}

// UpsertFeeds inserts or updates feeds by upstream ID and returns a map of
// upstream ID to local ID.
func (s *SQLStore) UpsertFeeds(ctx context.Context, feeds []models.Feed) (map[string]string, error) {
	ids := make(map[string]string, len(feeds))
	now := s.now()

	query := s.db.Rebind(`
		INSERT INTO feeds (id, inoreader_id, title, url, site_url, icon_url, folder, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (inoreader_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			site_url = excluded.site_url,
			icon_url = excluded.icon_url,
			folder = excluded.folder,
			updated_at = excluded.updated_at
		RETURNING id`)

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range feeds {
			var id string
			err := tx.QueryRowxContext(ctx, query,
				uuid.NewString(), f.InoreaderID, f.Title, f.URL, f.SiteURL, f.IconURL, f.Folder, now, now,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to upsert feed %s: %w", f.InoreaderID, err)
			}
			ids[f.InoreaderID] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteFeedsNotIn removes feeds whose upstream ID is not listed. Their
// articles are removed by the foreign key cascade.
func (s *SQLStore) DeleteFeedsNotIn(ctx context.Context, inoreaderIDs []string) (int, error) {
	if len(inoreaderIDs) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM feeds`)
		if err != nil {
			return 0, fmt.Errorf("failed to delete feeds: %w", err)
		}
		return rowsAffected(res), nil
	}

	query, args, err := in(s.db, `DELETE FROM feeds WHERE inoreader_id NOT IN (?)`, inoreaderIDs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unsubscribed feeds: %w", err)
	}
	return rowsAffected(res), nil
}

func (s *SQLStore) DeleteFeed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM feeds WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	if rowsAffected(res) == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUnreadCounts sets unread_count from a map of upstream stream ID to count.
// Feeds missing from the map are reset to zero.
func (s *SQLStore) UpdateUnreadCounts(ctx context.Context, counts map[string]int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE feeds SET unread_count = 0`); err != nil {
			return fmt.Errorf("failed to reset unread counts: %w", err)
		}

		query := tx.Rebind(`UPDATE feeds SET unread_count = ? WHERE inoreader_id = ?`)
		for streamID, count := range counts {
			if _, err := tx.ExecContext(ctx, query, count, streamID); err != nil {
				return fmt.Errorf("failed to update unread count for %s: %w", streamID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) ListTags(ctx context.Context) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := s.db.SelectContext(ctx, &tags, `
		SELECT t.id, t.inoreader_id, t.name, t.created_at,
			COUNT(a.id) AS article_count,
			COALESCE(SUM(CASE WHEN a.is_read = FALSE THEN 1 ELSE 0 END), 0) AS unread_count
		FROM tags t
		LEFT JOIN article_tags att ON att.tag_id = t.id
		LEFT JOIN articles a ON a.id = att.article_id
		GROUP BY t.id, t.inoreader_id, t.name, t.created_at
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// UpsertTags inserts or renames tags by upstream ID and returns a map of
// upstream ID to local ID.
func (s *SQLStore) UpsertTags(ctx context.Context, tags []models.Tag) (map[string]string, error) {
	ids := make(map[string]string, len(tags))
	now := s.now()

	query := s.db.Rebind(`
		INSERT INTO tags (id, inoreader_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (inoreader_id) DO UPDATE SET name = excluded.name
		RETURNING id`)

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range tags {
			var id string
			if err := tx.QueryRowxContext(ctx, query, uuid.NewString(), t.InoreaderID, t.Name, now).Scan(&id); err != nil {
				return fmt.Errorf("failed to upsert tag %s: %w", t.InoreaderID, err)
			}
			ids[t.InoreaderID] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
