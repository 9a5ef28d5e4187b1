package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssreader/internal/config"
	"rssreader/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := NewStorage(context.Background(), &config.Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T {
	return &v
}

// seed creates one feed, one tag and the given upstream articles.
func seed(t *testing.T, store *SQLStore, articles ...models.Article) (feedID, tagID string) {
	t.Helper()
	ctx := context.Background()

	feedIDs, err := store.UpsertFeeds(ctx, []models.Feed{{InoreaderID: "feed/https://example.com/rss", Title: "Example", Folder: "Tech"}})
	require.NoError(t, err)
	tagIDs, err := store.UpsertTags(ctx, []models.Tag{{InoreaderID: "user/1/label/Go", Name: "Go"}})
	require.NoError(t, err)

	for i := range articles {
		if articles[i].FeedStreamID == "" {
			articles[i].FeedStreamID = "feed/https://example.com/rss"
		}
	}

	require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{
		Articles: articles,
		FeedIDs:  feedIDs,
		TagIDs:   tagIDs,
		SyncedAt: time.Now(),
	}))
	return feedIDs["feed/https://example.com/rss"], tagIDs["user/1/label/Go"]
}

func upstream(id string, read bool, published time.Time) models.Article {
	return models.Article{
		InoreaderID: id,
		Title:       "Article " + id,
		URL:         "https://example.com/" + id,
		Content:     "<p>content</p>",
		IsRead:      read,
		PublishedAt: &published,
	}
}

func TestNewStorage_SQLiteDriver(t *testing.T) {
	store := newTestStore(t)

	assert.Equal(t, "sqlite3", store.Driver())
	assert.NoError(t, store.Ping(context.Background()))
	// Migrations are idempotent.
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, isPostgresURL("postgres://user@localhost/db"))
	assert.True(t, isPostgresURL("postgresql://user@localhost/db"))
	assert.False(t, isPostgresURL(""))
	assert.False(t, isPostgresURL("./data/rssreader.db"))
}

func TestFeeds_UpsertListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.UpsertFeeds(ctx, []models.Feed{
		{InoreaderID: "feed/a", Title: "A"},
		{InoreaderID: "feed/b", Title: "B"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Upserting again keeps the local ID and updates the title.
	again, err := store.UpsertFeeds(ctx, []models.Feed{{InoreaderID: "feed/a", Title: "A renamed"}})
	require.NoError(t, err)
	assert.Equal(t, ids["feed/a"], again["feed/a"])

	feed, err := store.GetFeed(ctx, ids["feed/a"])
	require.NoError(t, err)
	assert.Equal(t, "A renamed", feed.Title)

	removed, err := store.DeleteFeedsNotIn(ctx, []string{"feed/a"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	feeds, err := store.ListFeeds(ctx)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "feed/a", feeds[0].InoreaderID)

	require.NoError(t, store.DeleteFeed(ctx, ids["feed/a"]))
	assert.ErrorIs(t, store.DeleteFeed(ctx, ids["feed/a"]), ErrNotFound)
	_, err = store.GetFeed(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeeds_DeleteCascadesArticles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID, _ := seed(t, store, upstream("1", false, time.Now()))

	require.NoError(t, store.DeleteFeed(ctx, feedID))

	_, total, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestUpdateUnreadCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.UpsertFeeds(ctx, []models.Feed{{InoreaderID: "feed/a"}, {InoreaderID: "feed/b"}})
	require.NoError(t, err)

	require.NoError(t, store.UpdateUnreadCounts(ctx, map[string]int{"feed/a": 7}))

	a, err := store.GetFeed(ctx, ids["feed/a"])
	require.NoError(t, err)
	assert.Equal(t, 7, a.UnreadCount)

	b, err := store.GetFeed(ctx, ids["feed/b"])
	require.NoError(t, err)
	assert.Equal(t, 0, b.UnreadCount)
}

func TestApplySyncBatch_InsertsArticlesAndTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := upstream("1", false, time.Now().Add(-time.Hour))
	a.Labels = []string{"user/1/label/Go", "user/1/label/Unknown"}
	feedID, tagID := seed(t, store, a, upstream("2", true, time.Now()))

	articles, total, err := store.ListArticles(ctx, models.ArticleQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, articles, 2)
	assert.Equal(t, "2", articles[0].InoreaderID, "newest first")
	require.NotNil(t, articles[0].FeedID)
	assert.Equal(t, feedID, *articles[0].FeedID)

	tagged, total, err := store.ListArticles(ctx, models.ArticleQuery{TagID: tagID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "1", tagged[0].InoreaderID)

	full, err := store.GetArticle(ctx, tagged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user/1/label/Go"}, full.Labels)

	tags, err := store.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].ArticleCount)
	assert.Equal(t, 1, tags[0].UnreadCount)
}

func TestListArticles_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	starred := upstream("3", true, time.Now())
	starred.IsStarred = true
	seed(t, store, upstream("1", false, time.Now()), upstream("2", true, time.Now()), starred)

	_, total, err := store.ListArticles(ctx, models.ArticleQuery{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = store.ListArticles(ctx, models.ArticleQuery{Starred: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = store.ListArticles(ctx, models.ArticleQuery{Folder: "Tech"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	page, total, err := store.ListArticles(ctx, models.ArticleQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestUpdateArticleState_QueuesChange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", false, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)
	id := articles[0].ID

	updated, err := store.UpdateArticleState(ctx, id, models.ArticleStateUpdate{IsRead: ptr(true), IsStarred: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsRead)
	assert.True(t, updated.IsStarred)
	assert.NotNil(t, updated.LastLocalUpdate)

	changes, err := store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// Reverting read replaces the queued read with unread.
	_, err = store.UpdateArticleState(ctx, id, models.ArticleStateUpdate{IsRead: ptr(false)})
	require.NoError(t, err)

	changes, err = store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	actions := map[models.SyncAction]bool{}
	for _, c := range changes {
		actions[c.Action] = true
	}
	assert.Equal(t, map[models.SyncAction]bool{models.ActionUnread: true, models.ActionStar: true}, actions)

	_, err = store.UpdateArticleState(ctx, "missing", models.ArticleStateUpdate{IsRead: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplySyncBatch_PendingLocalStateWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", false, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)

	_, err = store.UpdateArticleState(ctx, articles[0].ID, models.ArticleStateUpdate{IsRead: ptr(true)})
	require.NoError(t, err)

	// Upstream still reports unread because the change has not been pushed yet.
	seed(t, store, upstream("1", false, time.Now()))

	got, err := store.GetArticle(ctx, articles[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}

func TestMarkRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feedID, _ := seed(t, store, upstream("1", false, time.Now()), upstream("2", false, time.Now()), upstream("3", true, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	n, err := store.MarkArticlesRead(ctx, []string{articles[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.MarkFeedRead(ctx, feedID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	changes, err := store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	_, err = store.MarkFeedRead(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteArticlesWithTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", true, time.Now()), upstream("2", false, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)

	ids := []string{articles[0].ID, articles[1].ID}
	n, err := store.DeleteArticlesWithTombstones(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tombstones, err := store.TombstonedIDs(ctx, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "2": true}, tombstones)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Articles)
	assert.Equal(t, 2, stats.Tombstones)
}

func TestApplySyncBatch_RemovesResurrectedTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", true, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)
	_, err = store.DeleteArticlesWithTombstones(ctx, []string{articles[0].ID})
	require.NoError(t, err)

	feedIDs, err := store.UpsertFeeds(ctx, []models.Feed{{InoreaderID: "feed/https://example.com/rss"}})
	require.NoError(t, err)
	a := upstream("1", false, time.Now())
	a.FeedStreamID = "feed/https://example.com/rss"
	require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{
		Articles:    []models.Article{a},
		Resurrected: []string{"1"},
		FeedIDs:     feedIDs,
	}))

	tombstones, err := store.TombstonedIDs(ctx, []string{"1"})
	require.NoError(t, err)
	assert.Empty(t, tombstones)

	_, total, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRetentionQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)
	starred := upstream("starred", true, old)
	starred.IsStarred = true
	seed(t, store,
		upstream("old-read", true, old),
		upstream("old-unread", false, old),
		starred,
		upstream("new-read", true, time.Now()),
	)

	expired, err := store.ExpiredReadArticles(ctx, time.Now().Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	got, err := store.GetArticle(ctx, expired[0])
	require.NoError(t, err)
	assert.Equal(t, "old-read", got.InoreaderID)

	// With one article allowed per feed, only the old read unstarred
	// article is surplus.
	surplus, err := store.SurplusReadArticles(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, surplus, 1)
}

func TestQueueMaintenance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", false, time.Now()), upstream("2", false, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)

	_, err = store.MarkArticlesRead(ctx, []string{articles[0].ID, articles[1].ID})
	require.NoError(t, err)

	changes, err := store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	require.NoError(t, store.IncrementQueueAttempts(ctx, []string{changes[0].ID}))
	require.NoError(t, store.IncrementQueueAttempts(ctx, []string{changes[0].ID}))
	dropped, err := store.DropExhaustedChanges(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	_, err = store.DeleteArticlesWithTombstones(ctx, []string{articles[0].ID, articles[1].ID})
	require.NoError(t, err)
	purged, err := store.PurgeOrphanedChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	require.NoError(t, store.DeleteQueuedChanges(ctx, nil))
}

func TestPurgeTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, upstream("1", true, time.Now()))
	articles, _, err := store.ListArticles(ctx, models.ArticleQuery{})
	require.NoError(t, err)
	_, err = store.DeleteArticlesWithTombstones(ctx, []string{articles[0].ID})
	require.NoError(t, err)

	n, err := store.PurgeTombstones(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.PurgeTombstones(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetadataUsageTokensPreferences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetMetadata(ctx, map[string]string{MetaLastSyncStatus: "completed"}))
	require.NoError(t, store.SetMetadata(ctx, map[string]string{MetaLastSyncStatus: "failed", MetaLastSyncError: "boom"}))
	meta, err := store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "failed", meta[MetaLastSyncStatus])
	assert.Equal(t, "boom", meta[MetaLastSyncError])

	usage, err := store.LoadAPIUsage(ctx, "2026-01-02")
	require.NoError(t, err)
	assert.Nil(t, usage)

	require.NoError(t, store.SaveAPIUsage(ctx, models.APIUsage{Date: "2026-01-02", Zone1Used: 12, Zone1Limit: 100, Zone2Limit: 100}))
	usage, err = store.LoadAPIUsage(ctx, "2026-01-02")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.Zone1Used)

	_, err = store.LoadToken(ctx, "inoreader")
	assert.ErrorIs(t, err, ErrNotFound)
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.SaveToken(ctx, models.OAuthToken{Provider: "inoreader", AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}))
	token, err := store.LoadToken(ctx, "inoreader")
	require.NoError(t, err)
	assert.Equal(t, "a", token.AccessToken)
	assert.True(t, expiry.Equal(token.Expiry))

	prefs, err := store.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPreferences(), prefs)

	prefs.Theme = "dark"
	require.NoError(t, store.SavePreferences(ctx, "user-1", prefs))
	prefs, err = store.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "dark", prefs.Theme)
}
