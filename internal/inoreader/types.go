package inoreader

import (
	"strings"
	"time"

	"rssreader/internal/models"
)

// UserInfo is the response of /user-info.
type UserInfo struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	UserProfileID string `json:"userProfileId"`
	UserEmail     string `json:"userEmail"`
}

type subscriptionList struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

// Subscription is a subscribed feed.
type Subscription struct {
	ID         string     `json:"id"` // e.g. "feed/https://example.com/rss"
	Title      string     `json:"title"`
	Categories []Category `json:"categories"`
	URL        string     `json:"url"`
	HTMLURL    string     `json:"htmlUrl"`
	IconURL    string     `json:"iconUrl"`
}

// Category is a folder or label attached to a subscription.
type Category struct {
	ID    string `json:"id"` // e.g. "user/1234/label/News"
	Label string `json:"label"`
}

// Folder returns the first category label, or "" when uncategorised.
func (s Subscription) Folder() string {
	if len(s.Categories) == 0 {
		return ""
	}
	return s.Categories[0].Label
}

// ToFeed converts the subscription to a local feed row.
func (s Subscription) ToFeed() models.Feed {
	return models.Feed{
		InoreaderID: s.ID,
		Title:       s.Title,
		URL:         s.URL,
		SiteURL:     s.HTMLURL,
		IconURL:     s.IconURL,
		Folder:      s.Folder(),
	}
}

type tagList struct {
	Tags []Tag `json:"tags"`
}

// Tag is an entry of /tag/list. Only labels carry "/label/" in their ID.
type Tag struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	UnreadCount int    `json:"unread_count"`
}

// IsLabel reports whether the tag is a user label or folder rather than a state.
func (t Tag) IsLabel() bool {
	return strings.Contains(t.ID, "/label/")
}

// Name returns the label name, the part after "/label/".
func (t Tag) Name() string {
	if i := strings.Index(t.ID, "/label/"); i >= 0 {
		return t.ID[i+len("/label/"):]
	}
	return t.ID
}

// StreamOptions controls a /stream/contents request.
type StreamOptions struct {
	Count        int
	Continuation string
}

// Stream is one page of /stream/contents.
type Stream struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Updated      int64  `json:"updated"`
	Items        []Item `json:"items"`
	Continuation string `json:"continuation"`
}

// Item is a single article of a stream page.
type Item struct {
	ID            string   `json:"id"`
	CrawlTimeMsec string   `json:"crawlTimeMsec"`
	TimestampUsec string   `json:"timestampUsec"`
	Categories    []string `json:"categories"`
	Title         string   `json:"title"`
	Published     int64    `json:"published"`
	Updated       int64    `json:"updated"`
	Canonical     []Link   `json:"canonical"`
	Alternate     []Link   `json:"alternate"`
	Summary       Summary  `json:"summary"`
	Author        string   `json:"author"`
	Origin        Origin   `json:"origin"`
}

type Link struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

type Summary struct {
	Direction string `json:"direction"`
	Content   string `json:"content"`
}

type Origin struct {
	StreamID string `json:"streamId"`
	Title    string `json:"title"`
	HTMLURL  string `json:"htmlUrl"`
}

// URL returns the canonical link, falling back to the first alternate link.
func (it Item) URL() string {
	if len(it.Canonical) > 0 && it.Canonical[0].Href != "" {
		return it.Canonical[0].Href
	}
	if len(it.Alternate) > 0 {
		return it.Alternate[0].Href
	}
	return ""
}

// HasState reports whether the item carries the given com.google state,
// e.g. "read" or "starred", for any user.
func (it Item) HasState(state string) bool {
	for _, c := range it.Categories {
		if isState(c, state) {
			return true
		}
	}
	return false
}

// Labels returns the user label IDs attached to the item.
func (it Item) Labels() []string {
	var labels []string
	for _, c := range it.Categories {
		if strings.HasPrefix(c, "user/") && strings.Contains(c, "/label/") {
			labels = append(labels, c)
		}
	}
	return labels
}

// ToArticle converts the item to an upstream article ready for reconciliation.
func (it Item) ToArticle() models.Article {
	a := models.Article{
		InoreaderID:  it.ID,
		Title:        it.Title,
		Author:       it.Author,
		URL:          it.URL(),
		Content:      it.Summary.Content,
		IsRead:       it.HasState("read"),
		IsStarred:    it.HasState("starred"),
		FeedStreamID: it.Origin.StreamID,
		Labels:       it.Labels(),
	}
	if it.Published > 0 {
		published := time.Unix(it.Published, 0).UTC()
		a.PublishedAt = &published
	}
	return a
}

func isState(category, state string) bool {
	return strings.HasPrefix(category, "user/") && strings.HasSuffix(category, "/state/com.google/"+state)
}

type unreadCountList struct {
	Max          interface{}   `json:"max"`
	UnreadCounts []unreadCount `json:"unreadcounts"`
}

type unreadCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// QuickAddResult is the response of /subscription/quickadd.
type QuickAddResult struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	StreamID   string `json:"streamId"`
	StreamName string `json:"streamName"`
}
