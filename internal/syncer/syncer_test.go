package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssreader/internal/cache"
	"rssreader/internal/config"
	"rssreader/internal/inoreader"
	"rssreader/internal/models"
	"rssreader/internal/ratelimit"
	"rssreader/internal/storage"
)

const feedStream = "feed/https://example.com/rss"

type edit struct {
	ids         []string
	add, remove string
}

type fakeUpstream struct {
	mu      sync.Mutex
	items   []inoreader.Item
	edits   []edit
	editErr error
	pages   int
	block   chan struct{}
}

func (f *fakeUpstream) Subscriptions(context.Context) ([]inoreader.Subscription, error) {
	return []inoreader.Subscription{{
		ID:         feedStream,
		Title:      "Example",
		Categories: []inoreader.Category{{ID: "user/1/label/Tech", Label: "Tech"}},
	}}, nil
}

func (f *fakeUpstream) Tags(context.Context) ([]inoreader.Tag, error) {
	return []inoreader.Tag{{ID: "user/1/label/Go"}}, nil
}

func (f *fakeUpstream) StreamContents(ctx context.Context, _ string, opts inoreader.StreamOptions) (*inoreader.Stream, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++

	start := 0
	if opts.Continuation != "" {
		fmt.Sscanf(opts.Continuation, "%d", &start)
	}
	end := min(start+opts.Count, len(f.items))

	page := &inoreader.Stream{Items: f.items[start:end]}
	if end < len(f.items) {
		page.Continuation = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (f *fakeUpstream) UnreadCounts(context.Context) (map[string]int, error) {
	return map[string]int{feedStream: 7}, nil
}

func (f *fakeUpstream) EditTag(_ context.Context, ids []string, add, remove string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, edit{ids: ids, add: add, remove: remove})
	return nil
}

type denyBudget struct{ asked int }

func (b *denyBudget) Check(_ context.Context, _ ratelimit.Zone, n int) error {
	b.asked = n
	return ratelimit.ErrBudgetExhausted
}

func item(id string, read bool) inoreader.Item {
	it := inoreader.Item{
		ID:         id,
		Title:      "Article " + id,
		Categories: []string{"user/1/label/Go"},
		Summary:    inoreader.Summary{Content: "<p>Body of " + id + "</p>"},
		Origin:     inoreader.Origin{StreamID: feedStream},
		Published:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix(),
	}
	if read {
		it.Categories = append(it.Categories, "user/1/state/com.google/read")
	}
	return it
}

func newTestService(t *testing.T, up *fakeUpstream, budget Budget) (*Service, *storage.SQLStore) {
	t.Helper()

	store, err := storage.NewStorage(context.Background(), &config.Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.SyncConfig{MaxArticlesPerSync: 100, PageSize: 2, MaxQueueAttempts: 2, StatusTTL: time.Hour}
	svc := New(store, up, budget, cache.NewManager(time.Minute), cfg, "default", nil)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, store
}

func articleByUpstreamID(t *testing.T, store *storage.SQLStore, id string) *models.Article {
	t.Helper()
	articles, _, err := store.ListArticles(context.Background(), models.ArticleQuery{Limit: 100})
	require.NoError(t, err)
	for i := range articles {
		if articles[i].InoreaderID == id {
			return &articles[i]
		}
	}
	return nil
}

func TestRun_ImportsFeedsTagsAndArticles(t *testing.T) {
	up := &fakeUpstream{items: []inoreader.Item{item("a1", false), item("a2", true), item("a3", false)}}
	svc, store := newTestService(t, up, nil)
	ctx := context.Background()

	result, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FeedsSynced)
	assert.Equal(t, 1, result.TagsSynced)
	assert.Equal(t, 3, result.ArticlesFetched)
	assert.Equal(t, 3, result.ArticlesAdmitted)
	assert.Equal(t, 2, up.pages, "page size 2 needs two pages for three items")

	feeds, err := store.ListFeeds(ctx)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Tech", feeds[0].Folder)
	assert.Equal(t, 7, feeds[0].UnreadCount)

	a2 := articleByUpstreamID(t, store, "a2")
	require.NotNil(t, a2)
	assert.True(t, a2.IsRead)
	assert.Equal(t, "<p>Body of a2</p>", a2.Content)
	assert.Equal(t, "Body of a2", a2.Summary)

	last, err := svc.LastResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "completed", last.Status)
	require.NotNil(t, last.Result)
	assert.Equal(t, 3, last.Result.ArticlesAdmitted)
	assert.NotNil(t, last.Time)
}

func TestRun_RespectsMaxArticles(t *testing.T) {
	limit := models.MinArticlesPerSync
	up := &fakeUpstream{}
	for i := 0; i < limit+5; i++ {
		up.items = append(up.items, item(fmt.Sprintf("i%02d", i), false))
	}
	svc, store := newTestService(t, up, nil)
	ctx := context.Background()

	prefs := models.DefaultPreferences()
	prefs.MaxArticlesPerSync = limit
	require.NoError(t, store.SavePreferences(ctx, "default", prefs))

	result, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, limit, result.ArticlesFetched)
	assert.Equal(t, limit/2, up.pages)
}

func TestRun_SkipsTombstonedReadAndResurrectsUnread(t *testing.T) {
	up := &fakeUpstream{items: []inoreader.Item{item("a1", true), item("a2", true)}}
	svc, store := newTestService(t, up, nil)
	ctx := context.Background()

	_, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)

	ids := []string{articleByUpstreamID(t, store, "a1").ID, articleByUpstreamID(t, store, "a2").ID}
	deleted, err := store.DeleteArticlesWithTombstones(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	// a1 stays read upstream, a2 was marked unread there.
	up.items = []inoreader.Item{item("a1", true), item("a2", false)}

	result, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ArticlesSkipped)
	assert.Equal(t, 1, result.ArticlesResurrected)
	assert.Equal(t, 1, result.ArticlesAdmitted)

	assert.Nil(t, articleByUpstreamID(t, store, "a1"))
	require.NotNil(t, articleByUpstreamID(t, store, "a2"))

	tombstones, err := store.TombstonedIDs(ctx, []string{"a1", "a2"})
	require.NoError(t, err)
	assert.True(t, tombstones["a1"])
	assert.False(t, tombstones["a2"])
}

func TestRun_PushesQueuedChanges(t *testing.T) {
	up := &fakeUpstream{items: []inoreader.Item{item("a1", false), item("a2", false)}}
	svc, store := newTestService(t, up, nil)
	ctx := context.Background()

	_, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)

	read, starred := true, true
	_, err = store.UpdateArticleState(ctx, articleByUpstreamID(t, store, "a1").ID, models.ArticleStateUpdate{IsRead: &read})
	require.NoError(t, err)
	_, err = store.UpdateArticleState(ctx, articleByUpstreamID(t, store, "a2").ID, models.ArticleStateUpdate{IsStarred: &starred})
	require.NoError(t, err)

	result, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChangesPushed)

	require.Len(t, up.edits, 2)
	byAdd := map[string][]string{}
	for _, e := range up.edits {
		byAdd[e.add] = e.ids
	}
	assert.Equal(t, []string{"a1"}, byAdd[models.StateRead])
	assert.Equal(t, []string{"a2"}, byAdd[models.StateStarred])

	pending, err := store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_FailedPushKeepsLocalState(t *testing.T) {
	up := &fakeUpstream{items: []inoreader.Item{item("a1", false)}}
	svc, store := newTestService(t, up, nil)
	ctx := context.Background()

	_, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)

	read := true
	_, err = store.UpdateArticleState(ctx, articleByUpstreamID(t, store, "a1").ID, models.ArticleStateUpdate{IsRead: &read})
	require.NoError(t, err)

	up.editErr = errors.New("upstream down")
	result, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, result.ChangesPushed)

	// Upstream still reports a1 unread; the pending local change wins.
	assert.True(t, articleByUpstreamID(t, store, "a1").IsRead)

	pending, err := store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	// Second failure reaches the attempt limit and the change is dropped.
	_, err = svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	pending, err = store.PendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_BudgetExhausted(t *testing.T) {
	budget := &denyBudget{}
	svc, _ := newTestService(t, &fakeUpstream{}, budget)

	_, err := svc.Run(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Equal(t, 4+50, budget.asked, "100 articles at page size 2")
	assert.False(t, svc.IsRunning())
}

func TestRun_ScheduledRespectsSyncDisabled(t *testing.T) {
	svc, store := newTestService(t, &fakeUpstream{}, nil)
	ctx := context.Background()

	prefs := models.DefaultPreferences()
	prefs.SyncEnabled = false
	require.NoError(t, store.SavePreferences(ctx, "default", prefs))

	_, err := svc.Run(ctx, TriggerScheduled)
	assert.ErrorIs(t, err, ErrSyncDisabled)

	_, err = svc.Run(ctx, TriggerManual)
	assert.NoError(t, err)
}

func TestStart_TracksStatusAndRejectsConcurrentSync(t *testing.T) {
	up := &fakeUpstream{items: []inoreader.Item{item("a1", false)}, block: make(chan struct{})}
	svc, _ := newTestService(t, up, nil)
	ctx := context.Background()

	syncID, err := svc.Start(ctx, TriggerManual)
	require.NoError(t, err)
	assert.NotEmpty(t, syncID)
	assert.True(t, svc.IsRunning())

	_, err = svc.Start(ctx, TriggerManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(up.block)
	require.Eventually(t, func() bool {
		status, err := svc.Status(syncID)
		return err == nil && status.State == models.SyncCompleted
	}, 5*time.Second, 10*time.Millisecond)

	status, err := svc.Status(syncID)
	require.NoError(t, err)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.Result)
	assert.Equal(t, 1, status.Result.ArticlesAdmitted)
	assert.False(t, svc.IsRunning())
}

func TestStatus_Unknown(t *testing.T) {
	svc, _ := newTestService(t, &fakeUpstream{}, nil)

	_, err := svc.Status("missing")
	assert.ErrorIs(t, err, ErrUnknownSync)
}

func TestLastResult_Never(t *testing.T) {
	svc, _ := newTestService(t, &fakeUpstream{}, nil)

	last, err := svc.LastResult(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "never", last.Status)
	assert.Nil(t, last.Time)
}
