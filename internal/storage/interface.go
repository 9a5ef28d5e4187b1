package storage

import (
	"context"
	"errors"
	"time"

	"rssreader/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the service.
type Store interface {
	// Feeds
	ListFeeds(ctx context.Context) ([]models.Feed, error)
	GetFeed(ctx context.Context, id string) (*models.Feed, error)
	UpsertFeeds(ctx context.Context, feeds []models.Feed) (map[string]string, error)
	DeleteFeedsNotIn(ctx context.Context, inoreaderIDs []string) (int, error)
	DeleteFeed(ctx context.Context, id string) error
	UpdateUnreadCounts(ctx context.Context, counts map[string]int) error

	// Tags
	ListTags(ctx context.Context) ([]models.Tag, error)
	UpsertTags(ctx context.Context, tags []models.Tag) (map[string]string, error)

	// Articles
	ListArticles(ctx context.Context, query models.ArticleQuery) ([]models.Article, int, error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	UpdateArticleState(ctx context.Context, id string, update models.ArticleStateUpdate) (*models.Article, error)
	MarkArticlesRead(ctx context.Context, ids []string) (int, error)
	MarkFeedRead(ctx context.Context, feedID string) (int, error)
	SaveFullContent(ctx context.Context, id, html string) error
	ApplySyncBatch(ctx context.Context, batch SyncBatch) error

	// Tombstones
	TombstonedIDs(ctx context.Context, inoreaderIDs []string) (map[string]bool, error)
	PurgeTombstones(ctx context.Context, olderThan time.Time) (int, error)

	// Sync queue
	PendingChanges(ctx context.Context, limit int) ([]models.QueuedChange, error)
	DeleteQueuedChanges(ctx context.Context, ids []string) error
	IncrementQueueAttempts(ctx context.Context, ids []string) error
	DropExhaustedChanges(ctx context.Context, maxAttempts int) (int, error)
	PurgeOrphanedChanges(ctx context.Context) (int, error)

	// Retention
	ExpiredReadArticles(ctx context.Context, before time.Time, limit int) ([]string, error)
	SurplusReadArticles(ctx context.Context, maxPerFeed, limit int) ([]string, error)
	DeleteArticlesWithTombstones(ctx context.Context, ids []string) (int, error)

	// Metadata, usage, tokens and users
	GetMetadata(ctx context.Context) (map[string]string, error)
	SetMetadata(ctx context.Context, values map[string]string) error
	LoadAPIUsage(ctx context.Context, date string) (*models.APIUsage, error)
	SaveAPIUsage(ctx context.Context, usage models.APIUsage) error
	LoadToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	SaveToken(ctx context.Context, token models.OAuthToken) error
	GetPreferences(ctx context.Context, userID string) (models.Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs models.Preferences) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (models.DatabaseStats, error)
	Close() error
}

// SyncBatch is the set of writes produced by reconciling one upstream batch.
// It is applied in a single transaction.
type SyncBatch struct {
	// Articles to insert or update. FeedStreamID and Labels are resolved
	// through FeedIDs and TagIDs.
	Articles []models.Article
	// Resurrected lists upstream IDs whose tombstones are removed.
	Resurrected []string
	// FeedIDs maps upstream stream IDs to local feed IDs.
	FeedIDs map[string]string
	// TagIDs maps upstream label IDs to local tag IDs.
	TagIDs   map[string]string
	SyncedAt time.Time
}
