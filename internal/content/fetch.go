package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/mmcdole/gofeed"
)

var (
	// ErrNotAFeed is returned when a URL does not serve an RSS, Atom or JSON feed.
	ErrNotAFeed = errors.New("url is not a valid feed")
	// ErrNoContent is returned when no readable article could be extracted.
	ErrNoContent = errors.New("no readable content found")
	// ErrInvalidURL is returned for article URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid article url")
)

const maxPageBytes = 5 << 20

// Fetcher downloads pages and feeds on behalf of the API.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "content"),
	}
}

// FetchFullContent downloads rawURL and returns its main article body as
// sanitised HTML.
func (f *Fetcher) FetchFullContent(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("%w %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "rssreader/1.0 (+full-content)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	f.logger.Info("fetching full content", "url", pageURL.String())
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch article: status %d", resp.StatusCode)
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil &&
		!strings.Contains(mediaType, "html") {
		return "", fmt.Errorf("%w: content type %s", ErrNoContent, mediaType)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("failed to render article: %w", err)
	}

	html := Sanitize(buf.String())
	if PlainText(html) == "" {
		return "", ErrNoContent
	}
	return html, nil
}

// FeedPreview describes a feed that passed validation.
type FeedPreview struct {
	Title     string `json:"title"`
	SiteURL   string `json:"site_url"`
	FeedType  string `json:"feed_type"`
	ItemCount int    `json:"item_count"`
}

// ValidateFeed checks that feedURL serves a parseable feed.
func (f *Fetcher) ValidateFeed(ctx context.Context, feedURL string) (*FeedPreview, error) {
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrNotAFeed, feedURL)
	}

	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = "rssreader/1.0"

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNotAFeed, err)
	}

	return &FeedPreview{
		Title:     feed.Title,
		SiteURL:   feed.Link,
		FeedType:  feed.FeedType,
		ItemCount: len(feed.Items),
	}, nil
}
