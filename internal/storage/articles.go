package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rssreader/internal/models"
)

const articleColumns = `a.id, a.inoreader_id, a.feed_id, a.title, a.author, a.url, a.content, a.summary,
	a.full_content, a.has_full_content, a.language, a.published_at, a.is_read, a.is_starred,
	a.last_local_update, a.last_sync_update, a.created_at`

// ListArticles returns one page of articles, newest first, and the total
// number of articles matching the filters.
func (s *SQLStore) ListArticles(ctx context.Context, q models.ArticleQuery) ([]models.Article, int, error) {
	var (
		joins      []string
		conditions []string
		args       []interface{}
	)

	if q.FeedID != "" {
		conditions = append(conditions, "a.feed_id = ?")
		args = append(args, q.FeedID)
	}
	if q.Folder != "" {
		joins = append(joins, "JOIN feeds f ON f.id = a.feed_id")
		conditions = append(conditions, "f.folder = ?")
		args = append(args, q.Folder)
	}
	if q.TagID != "" {
		joins = append(joins, "JOIN article_tags att ON att.article_id = a.id")
		conditions = append(conditions, "att.tag_id = ?")
		args = append(args, q.TagID)
	}
	if q.UnreadOnly {
		conditions = append(conditions, "a.is_read = FALSE")
	}
	if q.Starred {
		conditions = append(conditions, "a.is_starred = TRUE")
	}

	from := " FROM articles a " + strings.Join(joins, " ")
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*)"+from+where), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + articleColumns + from + where +
		" ORDER BY COALESCE(a.published_at, a.created_at) DESC, a.id LIMIT ? OFFSET ?"
	pageArgs := append(append([]interface{}{}, args...), limit, q.Offset)

	articles := []models.Article{}
	if err := s.db.SelectContext(ctx, &articles, s.db.Rebind(query), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, total, nil
}

func (s *SQLStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	return s.getArticle(ctx, s.db, id)
}

func (s *SQLStore) getArticle(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Article, error) {
	article := &models.Article{}
	query := sqlx.Rebind(sqlx.BindType(s.driver), `SELECT `+articleColumns+` FROM articles a WHERE a.id = ?`)
	if err := sqlx.GetContext(ctx, q, article, query, id); err != nil {
		return nil, notFound(err)
	}

	labels := []string{}
	query = sqlx.Rebind(sqlx.BindType(s.driver), `
		SELECT t.inoreader_id FROM tags t
		JOIN article_tags att ON att.tag_id = t.id
		WHERE att.article_id = ? ORDER BY t.name`)
	if err := sqlx.SelectContext(ctx, q, &labels, query, id); err != nil {
		return nil, fmt.Errorf("failed to load article tags: %w", err)
	}
	article.Labels = labels
	return article, nil
}

// UpdateArticleState applies a local read/star change and queues it for
// the next sync.
func (s *SQLStore) UpdateArticleState(ctx context.Context, id string, update models.ArticleStateUpdate) (*models.Article, error) {
	var updated *models.Article
	now := s.now()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		article, err := s.getArticle(ctx, tx, id)
		if err != nil {
			return err
		}

		if update.IsRead != nil && *update.IsRead != article.IsRead {
			action := models.ActionUnread
			if *update.IsRead {
				action = models.ActionRead
			}
			if err := s.enqueue(ctx, tx, article.InoreaderID, action, now); err != nil {
				return err
			}
			article.IsRead = *update.IsRead
		}

		if update.IsStarred != nil && *update.IsStarred != article.IsStarred {
			action := models.ActionUnstar
			if *update.IsStarred {
				action = models.ActionStar
			}
			if err := s.enqueue(ctx, tx, article.InoreaderID, action, now); err != nil {
				return err
			}
			article.IsStarred = *update.IsStarred
		}

		_, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE articles SET is_read = ?, is_starred = ?, last_local_update = ? WHERE id = ?`),
			article.IsRead, article.IsStarred, now, id)
		if err != nil {
			return fmt.Errorf("failed to update article: %w", err)
		}

		article.LastLocalUpdate = &now
		updated = article
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkArticlesRead marks the given unread articles read and queues the change.
func (s *SQLStore) MarkArticlesRead(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.markRead(ctx, `SELECT id, inoreader_id FROM articles WHERE is_read = FALSE AND id IN (?)`, ids)
}

// MarkFeedRead marks every unread article of a feed read and queues the change.
func (s *SQLStore) MarkFeedRead(ctx context.Context, feedID string) (int, error) {
	if _, err := s.GetFeed(ctx, feedID); err != nil {
		return 0, err
	}
	return s.markRead(ctx, `SELECT id, inoreader_id FROM articles WHERE is_read = FALSE AND feed_id = ?`, feedID)
}

func (s *SQLStore) markRead(ctx context.Context, selectQuery string, arg interface{}) (int, error) {
	now := s.now()
	count := 0

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := in(tx, selectQuery, arg)
		if err != nil {
			return err
		}

		var targets []struct {
			ID          string `db:"id"`
			InoreaderID string `db:"inoreader_id"`
		}
		if err := tx.SelectContext(ctx, &targets, query, args...); err != nil {
			return fmt.Errorf("failed to select unread articles: %w", err)
		}
		if len(targets) == 0 {
			return nil
		}

		ids := make([]string, 0, len(targets))
		for _, t := range targets {
			ids = append(ids, t.ID)
			if err := s.enqueue(ctx, tx, t.InoreaderID, models.ActionRead, now); err != nil {
				return err
			}
		}

		query, args, err = in(tx, `UPDATE articles SET is_read = TRUE, last_local_update = ? WHERE id IN (?)`, now, ids)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to mark articles read: %w", err)
		}
		count = rowsAffected(res)
		return nil
	})
	return count, err
}

// enqueue records a pending upstream change, replacing its opposite.
func (s *SQLStore) enqueue(ctx context.Context, tx *sqlx.Tx, inoreaderID string, action models.SyncAction, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sync_queue WHERE inoreader_id = ? AND action = ?`),
		inoreaderID, opposite(action))
	if err != nil {
		return fmt.Errorf("failed to clear queued change: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sync_queue (id, inoreader_id, action, attempts, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (inoreader_id, action) DO NOTHING`),
		uuid.NewString(), inoreaderID, string(action), now)
	if err != nil {
		return fmt.Errorf("failed to queue change: %w", err)
	}
	return nil
}

func opposite(action models.SyncAction) models.SyncAction {
	switch action {
	case models.ActionRead:
		return models.ActionUnread
	case models.ActionUnread:
		return models.ActionRead
	case models.ActionStar:
		return models.ActionUnstar
	default:
		return models.ActionStar
	}
}

func (s *SQLStore) SaveFullContent(ctx context.Context, id, html string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE articles SET full_content = ?, has_full_content = TRUE WHERE id = ?`), html, id)
	if err != nil {
		return fmt.Errorf("failed to save full content: %w", err)
	}
	if rowsAffected(res) == 0 {
		return ErrNotFound
	}
	return nil
}
