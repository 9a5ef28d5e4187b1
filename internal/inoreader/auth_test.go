package inoreader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssreader/internal/config"
	"rssreader/internal/models"
	"rssreader/internal/storage"
)

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.OAuthToken
}

func (m *memoryTokenStore) LoadToken(_ context.Context, provider string) (*models.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[provider]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &token, nil
}

func (m *memoryTokenStore) SaveToken(_ context.Context, token models.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]models.OAuthToken)
	}
	m.tokens[token.Provider] = token
	return nil
}

func TestNewHTTPClient_RefreshesAndPersists(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "seed-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/reader/api/0/user-info", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": "1"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := config.InoreaderConfig{
		BaseURL:        server.URL + "/reader/api/0",
		TokenURL:       server.URL + "/oauth2/token",
		ClientID:       "client",
		ClientSecret:   "secret",
		RefreshToken:   "seed-refresh",
		RequestTimeout: 5 * time.Second,
	}
	store := &memoryTokenStore{}

	httpClient, err := NewHTTPClient(context.Background(), cfg, store, nil)
	require.NoError(t, err)

	client := NewClient(cfg, httpClient, nil, nil)
	_, err = client.UserInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer fresh-access", gotAuth)
	saved, err := store.LoadToken(context.Background(), TokenProvider)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", saved.AccessToken)
	assert.Equal(t, "fresh-refresh", saved.RefreshToken)
}

func TestNewHTTPClient_PrefersStoredToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": "1"})
	}))
	defer server.Close()

	store := &memoryTokenStore{}
	require.NoError(t, store.SaveToken(context.Background(), models.OAuthToken{
		Provider:    TokenProvider,
		AccessToken: "stored-access",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	cfg := config.InoreaderConfig{BaseURL: server.URL, AccessToken: "env-access"}
	httpClient, err := NewHTTPClient(context.Background(), cfg, store, nil)
	require.NoError(t, err)

	_, err = NewClient(cfg, httpClient, nil, nil).UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-access", gotAuth)
}

func TestNewHTTPClient_NoCredentials(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), config.InoreaderConfig{}, &memoryTokenStore{}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewDeferredHTTPClient_PicksUpStoredToken(t *testing.T) {
	var calls int
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": "1", "userName": "reader"})
	}))
	defer server.Close()

	cfg := config.InoreaderConfig{BaseURL: server.URL, RetryAttempts: 3, RetryBackoff: time.Millisecond}
	store := &memoryTokenStore{}
	client := NewClient(cfg, NewDeferredHTTPClient(context.Background(), cfg, store, nil), nil, nil)

	_, err := client.UserInfo(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, calls, "no request may leave without a token")

	require.NoError(t, store.SaveToken(context.Background(), models.OAuthToken{
		Provider:    TokenProvider,
		AccessToken: "late-access",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	info, err := client.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reader", info.UserName)
	assert.Equal(t, "Bearer late-access", gotAuth)
	assert.Equal(t, 1, calls)
}
