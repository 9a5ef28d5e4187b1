package inoreader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssreader/internal/config"
	"rssreader/internal/ratelimit"
)

type fakeBudget struct {
	mu       sync.Mutex
	reserved map[ratelimit.Zone]int
	observed int
	err      error
}

func (b *fakeBudget) Reserve(_ context.Context, zone ratelimit.Zone, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.reserved == nil {
		b.reserved = make(map[ratelimit.Zone]int)
	}
	b.reserved[zone] += n
	return nil
}

func (b *fakeBudget) Observe(_ context.Context, h http.Header) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h.Get("X-Reader-Zone1-Usage") != "" {
		b.observed++
	}
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, budget Budget) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.InoreaderConfig{
		BaseURL:       server.URL + "/reader/api/0",
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	}
	return NewClient(cfg, server.Client(), budget, nil)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Reader-Zone1-Usage", "10")
	w.Header().Set("X-Reader-Zone1-Limit", "100")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Subscriptions(t *testing.T) {
	budget := &fakeBudget{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reader/api/0/subscription/list", r.URL.Path)
		writeJSON(w, map[string]interface{}{
			"subscriptions": []map[string]interface{}{
				{
					"id":         "feed/https://example.com/rss",
					"title":      "Example",
					"url":        "https://example.com/rss",
					"htmlUrl":    "https://example.com",
					"categories": []map[string]string{{"id": "user/1/label/Tech", "label": "Tech"}},
				},
			},
		})
	}), budget)

	subs, err := client.Subscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)

	feed := subs[0].ToFeed()
	assert.Equal(t, "feed/https://example.com/rss", feed.InoreaderID)
	assert.Equal(t, "Tech", feed.Folder)
	assert.Equal(t, "https://example.com", feed.SiteURL)
	assert.Equal(t, 1, budget.reserved[ratelimit.Zone1])
	assert.Equal(t, 1, budget.observed)
}

func TestClient_TagsFiltersStates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("types"))
		writeJSON(w, map[string]interface{}{
			"tags": []map[string]string{
				{"id": "user/1/state/com.google/starred"},
				{"id": "user/1/label/Go", "type": "tag"},
			},
		})
	}), nil)

	tags, err := client.Tags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Go", tags[0].Name())
}

func TestClient_StreamContents(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.EscapedPath(), "/reader/api/0/stream/contents/user%2F-%2Fstate"))
		assert.Equal(t, "50", r.URL.Query().Get("n"))
		assert.Equal(t, "next-page", r.URL.Query().Get("c"))
		assert.Empty(t, r.URL.Query().Get("xt"))

		writeJSON(w, map[string]interface{}{
			"id":           "user/-/state/com.google/reading-list",
			"continuation": "after",
			"items": []map[string]interface{}{
				{
					"id":         "tag:google.com,2005:reader/item/0001",
					"title":      "Hello",
					"published":  1700000000,
					"categories": []string{"user/1005/state/com.google/read", "user/1005/label/Go", "user/1005/state/com.google/reading-list"},
					"canonical":  []map[string]string{{"href": "https://example.com/hello"}},
					"summary":    map[string]string{"content": "<p>Hi</p>"},
					"origin":     map[string]string{"streamId": "feed/https://example.com/rss"},
				},
			},
		})
	}), nil)

	stream, err := client.StreamContents(context.Background(), "user/-/state/com.google/reading-list", StreamOptions{
		Count:        50,
		Continuation: "next-page",
	})
	require.NoError(t, err)
	assert.Equal(t, "after", stream.Continuation)
	require.Len(t, stream.Items, 1)

	article := stream.Items[0].ToArticle()
	assert.True(t, article.IsRead)
	assert.False(t, article.IsStarred)
	assert.Equal(t, "https://example.com/hello", article.URL)
	assert.Equal(t, []string{"user/1005/label/Go"}, article.Labels)
	assert.Equal(t, "feed/https://example.com/rss", article.FeedStreamID)
	require.NotNil(t, article.PublishedAt)
	assert.Equal(t, int64(1700000000), article.PublishedAt.Unix())
}

func TestClient_EditTagSendsForm(t *testing.T) {
	budget := &fakeBudget{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, []string{"a", "b"}, r.PostForm["i"])
		assert.Equal(t, "user/-/state/com.google/read", r.PostForm.Get("a"))
		assert.Empty(t, r.PostForm.Get("r"))
		_, _ = w.Write([]byte("OK"))
	}), budget)

	err := client.EditTag(context.Background(), []string{"a", "b"}, "user/-/state/com.google/read", "")
	require.NoError(t, err)
	assert.Equal(t, 1, budget.reserved[ratelimit.Zone2])

	tooMany := make([]string, MaxEditTagIDs+1)
	assert.Error(t, client.EditTag(context.Background(), tooMany, "x", ""))
}

func TestClient_UnreadCounts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"max": 1000,
			"unreadcounts": []map[string]interface{}{
				{"id": "feed/a", "count": 3},
				{"id": "feed/b", "count": 0},
			},
		})
	}), nil)

	counts, err := client.UnreadCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"feed/a": 3, "feed/b": 0}, counts)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int
	budget := &fakeBudget{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{"userId": "1005", "userName": "reader"})
	}), budget)

	info, err := client.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1005", info.UserID)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, budget.reserved[ratelimit.Zone1])
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}), nil)

	_, err := client.UserInfo(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
			}), nil)

			_, err := client.Subscriptions(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, calls, "no retry")
		})
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad stream", http.StatusBadRequest)
	}), nil)

	_, err := client.StreamContents(context.Background(), "feed/x", StreamOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad stream")
	assert.Equal(t, 1, calls)
}

func TestClient_BudgetExhaustedStopsBeforeSending(t *testing.T) {
	var calls int
	budget := &fakeBudget{err: ratelimit.ErrBudgetExhausted}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}), budget)

	_, err := client.Subscriptions(context.Background())
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Equal(t, 0, calls)
}

func TestClient_QuickAddAndUnsubscribe(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/reader/api/0/subscription/quickadd":
			assert.Equal(t, "https://example.com/rss", r.PostForm.Get("quickadd"))
			writeJSON(w, map[string]interface{}{"numResults": 1, "streamId": "feed/https://example.com/rss", "streamName": "Example"})
		case "/reader/api/0/subscription/edit":
			assert.Equal(t, "unsubscribe", r.PostForm.Get("ac"))
			assert.Equal(t, "feed/https://example.com/rss", r.PostForm.Get("s"))
			_, _ = w.Write([]byte("OK"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}), nil)

	res, err := client.QuickAdd(context.Background(), "https://example.com/rss")
	require.NoError(t, err)
	assert.Equal(t, "feed/https://example.com/rss", res.StreamID)

	require.NoError(t, client.Unsubscribe(context.Background(), res.StreamID))
}

func TestItem_URLFallsBackToAlternate(t *testing.T) {
	item := Item{Alternate: []Link{{Href: "https://example.com/alt"}}}
	assert.Equal(t, "https://example.com/alt", item.URL())

	item.Canonical = []Link{{Href: "https://example.com/canonical"}}
	assert.Equal(t, "https://example.com/canonical", item.URL())
}
