// Package inoreader is a client for the Inoreader reader API.
package inoreader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"rssreader/internal/config"
	"rssreader/internal/metrics"
	"rssreader/internal/ratelimit"
)

var (
	// ErrRateLimited is returned when Inoreader answers 429.
	ErrRateLimited = errors.New("inoreader rate limit exceeded")
	// ErrUnauthorized is returned when the token is rejected or cannot be refreshed.
	ErrUnauthorized = errors.New("inoreader authorization failed")
)

// MaxEditTagIDs is the largest number of item IDs sent in one edit-tag call.
const MaxEditTagIDs = 100

// APIError is a non-retryable error response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inoreader API error %d: %s", e.StatusCode, e.Body)
}

// Budget is consulted before each request and updated from response headers.
type Budget interface {
	Reserve(ctx context.Context, zone ratelimit.Zone, n int) error
	Observe(ctx context.Context, h http.Header) error
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	budget        Budget
	logger        *slog.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// NewClient creates a client. httpClient should attach credentials, for
// example one built by oauth2.NewClient. budget may be nil.
func NewClient(cfg config.InoreaderConfig, httpClient *http.Client, budget Budget, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    httpClient,
		budget:        budget,
		logger:        logger.With("component", "inoreader"),
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
	}
}

func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if err := c.get(ctx, "/user-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var list subscriptionList
	if err := c.get(ctx, "/subscription/list", nil, &list); err != nil {
		return nil, err
	}
	return list.Subscriptions, nil
}

// Tags returns the user's labels and folders; state tags are filtered out.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var list tagList
	if err := c.get(ctx, "/tag/list", url.Values{"types": {"1"}, "counts": {"1"}}, &list); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(list.Tags))
	for _, t := range list.Tags {
		if t.IsLabel() {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func (c *Client) StreamContents(ctx context.Context, streamID string, opts StreamOptions) (*Stream, error) {
	params := url.Values{}
	if opts.Count > 0 {
		params.Set("n", strconv.Itoa(opts.Count))
	}
	if opts.Continuation != "" {
		params.Set("c", opts.Continuation)
	}

	var stream Stream
	if err := c.get(ctx, "/stream/contents/"+url.PathEscape(streamID), params, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// UnreadCounts returns unread counts keyed by stream ID.
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var list unreadCountList
	if err := c.get(ctx, "/unread-count", nil, &list); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(list.UnreadCounts))
	for _, uc := range list.UnreadCounts {
		counts[uc.ID] = uc.Count
	}
	return counts, nil
}

// EditTag adds and/or removes a tag on up to MaxEditTagIDs items.
func (c *Client) EditTag(ctx context.Context, ids []string, add, remove string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxEditTagIDs {
		return fmt.Errorf("edit-tag accepts at most %d ids, got %d", MaxEditTagIDs, len(ids))
	}

	form := url.Values{"i": ids}
	if add != "" {
		form.Set("a", add)
	}
	if remove != "" {
		form.Set("r", remove)
	}
	return c.post(ctx, "/edit-tag", form, nil)
}

func (c *Client) QuickAdd(ctx context.Context, feedURL string) (*QuickAddResult, error) {
	var res QuickAddResult
	if err := c.post(ctx, "/subscription/quickadd", url.Values{"quickadd": {feedURL}}, &res); err != nil {
		return nil, err
	}
	if res.StreamID == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Body: "no feed found for " + feedURL}
	}
	return &res, nil
}

func (c *Client) Unsubscribe(ctx context.Context, streamID string) error {
	return c.post(ctx, "/subscription/edit", url.Values{"ac": {"unsubscribe"}, "s": {streamID}}, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, ratelimit.Zone1, http.MethodGet, path, params, nil, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.do(ctx, ratelimit.Zone2, http.MethodPost, path, nil, form, out)
}

// do sends a request, retrying network errors and 5xx responses a fixed
// number of times with a fixed backoff.
func (c *Client) do(ctx context.Context, zone ratelimit.Zone, method, path string, params, form url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying upstream request",
				"path", path,
				"attempt", attempt,
				"error", lastErr)
			if err := sleep(ctx, c.retryBackoff); err != nil {
				return err
			}
		}

		if c.budget != nil {
			if err := c.budget.Reserve(ctx, zone, 1); err != nil {
				return err
			}
		}

		retry, err := c.send(ctx, zone, method, path, params, form, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.retryAttempts+1, lastErr)
}

func (c *Client) send(ctx context.Context, zone ratelimit.Zone, method, path string, params, form url.Values, out interface{}) (bool, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rssreader/1.0")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream(int(zone), "error")

		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return false, fmt.Errorf("%w: token refresh failed: %v", ErrUnauthorized, retrieveErr)
		}
		if errors.Is(err, ErrUnauthorized) {
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordUpstream(int(zone), strconv.Itoa(resp.StatusCode))
	if c.budget != nil {
		if err := c.budget.Observe(ctx, resp.Header); err != nil {
			c.logger.Warn("failed to record upstream usage", "error", err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("%w (zone 1: %s/%s)", ErrRateLimited,
			resp.Header.Get("X-Reader-Zone1-Usage"), resp.Header.Get("X-Reader-Zone1-Limit"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return true, &APIError{StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	case resp.StatusCode >= 400:
		return false, &APIError{StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return false, nil
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
