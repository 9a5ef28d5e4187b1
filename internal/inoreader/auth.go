package inoreader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"rssreader/internal/config"
	"rssreader/internal/models"
	"rssreader/internal/storage"
)

// TokenProvider is the oauth_tokens key used for Inoreader.
const TokenProvider = "inoreader"

// TokenStore persists OAuth2 tokens across restarts.
type TokenStore interface {
	LoadToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	SaveToken(ctx context.Context, token models.OAuthToken) error
}

// OAuthConfig returns the OAuth2 configuration for the Inoreader app.
func OAuthConfig(cfg config.InoreaderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"read", "write"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// NewHTTPClient returns an HTTP client that authenticates requests with the
// newest known token, refreshing and persisting it when it expires.
//
// The stored token wins over INOREADER_ACCESS_TOKEN / INOREADER_REFRESH_TOKEN,
// which only seed the first run.
func NewHTTPClient(ctx context.Context, cfg config.InoreaderConfig, store TokenStore, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	initial, err := initialToken(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	base := oauth2.TokenSource(oauth2.StaticTokenSource(initial))
	if cfg.ClientID != "" && initial.RefreshToken != "" {
		base = OAuthConfig(cfg).TokenSource(ctx, initial)
	}

	ts := &persistingTokenSource{
		ctx:    ctx,
		base:   base,
		store:  store,
		logger: logger.With("component", "inoreader-auth"),
		last:   initial.AccessToken,
	}

	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(initial, ts))
	client.Timeout = cfg.RequestTimeout
	return client, nil
}

// NewDeferredHTTPClient is NewHTTPClient for a process started before any
// token exists. Requests fail with ErrUnauthorized until a token is stored,
// after which the client behaves like one from NewHTTPClient.
func NewDeferredHTTPClient(ctx context.Context, cfg config.InoreaderConfig, store TokenStore, logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &deferredTransport{
			ctx:    ctx,
			cfg:    cfg,
			store:  store,
			logger: logger,
		},
	}
}

type deferredTransport struct {
	ctx    context.Context
	cfg    config.InoreaderConfig
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	next http.RoundTripper
}

func (t *deferredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next, err := t.transport()
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	return next.RoundTrip(req)
}

func (t *deferredTransport) transport() (http.RoundTripper, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next != nil {
		return t.next, nil
	}
	client, err := NewHTTPClient(t.ctx, t.cfg, t.store, t.logger)
	if err != nil {
		return nil, err
	}
	t.logger.Info("inoreader token found, upstream calls enabled")
	t.next = client.Transport
	return t.next, nil
}

func initialToken(ctx context.Context, cfg config.InoreaderConfig, store TokenStore) (*oauth2.Token, error) {
	if store != nil {
		stored, err := store.LoadToken(ctx, TokenProvider)
		switch {
		case err == nil:
			return &oauth2.Token{
				AccessToken:  stored.AccessToken,
				RefreshToken: stored.RefreshToken,
				TokenType:    stored.TokenType,
				Expiry:       stored.Expiry,
			}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to load stored token: %w", err)
		}
	}

	if cfg.AccessToken == "" && cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no stored token and no INOREADER_ACCESS_TOKEN or INOREADER_REFRESH_TOKEN set", ErrUnauthorized)
	}

	// Without an expiry an env-provided access token is used until the API
	// rejects it; a refresh-only token is exchanged on first use.
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	if token.AccessToken == "" {
		token.Expiry = time.Unix(1, 0)
	}
	return token, nil
}

// persistingTokenSource saves every newly issued token.
type persistingTokenSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if token.AccessToken == p.last || p.store == nil {
		return token, nil
	}
	p.last = token.AccessToken

	err = p.store.SaveToken(p.ctx, models.OAuthToken{
		Provider:     TokenProvider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		Expiry:       token.Expiry,
	})
	if err != nil {
		p.logger.Error("failed to persist refreshed token", "error", err)
	} else {
		p.logger.Info("refreshed inoreader token", "expiry", token.Expiry)
	}
	return token, nil
}
