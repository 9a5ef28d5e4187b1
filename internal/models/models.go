package models

import (
	"time"
)

// Upstream stream and state identifiers used by Inoreader.
const (
	StreamReadingList = "user/-/state/com.google/reading-list"
	StateRead         = "user/-/state/com.google/read"
	StateStarred      = "user/-/state/com.google/starred"
)

// Feed represents a subscribed upstream feed
type Feed struct {
	ID          string    `json:"id" db:"id"`
	InoreaderID string    `json:"inoreader_id" db:"inoreader_id"`
	Title       string    `json:"title" db:"title"`
	URL         string    `json:"url" db:"url"`
	SiteURL     string    `json:"site_url" db:"site_url"`
	IconURL     string    `json:"icon_url" db:"icon_url"`
	Folder      string    `json:"folder" db:"folder"`
	UnreadCount int       `json:"unread_count" db:"unread_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Tag represents an upstream label
type Tag struct {
	ID           string    `json:"id" db:"id"`
	InoreaderID  string    `json:"inoreader_id" db:"inoreader_id"`
	Name         string    `json:"name" db:"name"`
	ArticleCount int       `json:"article_count" db:"article_count"`
	UnreadCount  int       `json:"unread_count" db:"unread_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Article represents a single synced article
type Article struct {
	ID              string     `json:"id" db:"id"`
	InoreaderID     string     `json:"inoreader_id" db:"inoreader_id"`
	FeedID          *string    `json:"feed_id" db:"feed_id"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	URL             string     `json:"url" db:"url"`
	Content         string     `json:"content" db:"content"`
	Summary         string     `json:"summary" db:"summary"`
	FullContent     string     `json:"full_content,omitempty" db:"full_content"`
	HasFullContent  bool       `json:"has_full_content" db:"has_full_content"`
	Language        string     `json:"language" db:"language"`
	PublishedAt     *time.Time `json:"published_at" db:"published_at"`
	IsRead          bool       `json:"is_read" db:"is_read"`
	IsStarred       bool       `json:"is_starred" db:"is_starred"`
	LastLocalUpdate *time.Time `json:"last_local_update,omitempty" db:"last_local_update"`
	LastSyncUpdate  *time.Time `json:"last_sync_update,omitempty" db:"last_sync_update"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`

	// Upstream-only fields used while reconciling a batch.
	FeedStreamID string   `json:"-" db:"-"`
	Labels       []string `json:"tags,omitempty" db:"-"`
}

// DeletedArticle is a tombstone for an upstream article that was deleted locally
type DeletedArticle struct {
	InoreaderID string    `json:"inoreader_id" db:"inoreader_id"`
	FeedID      *string   `json:"feed_id" db:"feed_id"`
	WasRead     bool      `json:"was_read" db:"was_read"`
	DeletedAt   time.Time `json:"deleted_at" db:"deleted_at"`
}

// SyncAction is a local state change waiting to be pushed upstream
type SyncAction string

const (
	ActionRead   SyncAction = "read"
	ActionUnread SyncAction = "unread"
	ActionStar   SyncAction = "star"
	ActionUnstar SyncAction = "unstar"
)

// QueuedChange represents a row of the sync queue
type QueuedChange struct {
	ID          string     `json:"id" db:"id"`
	InoreaderID string     `json:"inoreader_id" db:"inoreader_id"`
	Action      SyncAction `json:"action" db:"action"`
	Attempts    int        `json:"attempts" db:"attempts"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ArticleQuery represents listing filters for articles
type ArticleQuery struct {
	FeedID     string `json:"feed_id"`
	TagID      string `json:"tag_id"`
	Folder     string `json:"folder"`
	UnreadOnly bool   `json:"unread"`
	Starred    bool   `json:"starred"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// ArticleStateUpdate carries a partial read/star change
type ArticleStateUpdate struct {
	IsRead    *bool `json:"is_read"`
	IsStarred *bool `json:"is_starred"`
}

// Empty reports whether the update changes nothing
func (u ArticleStateUpdate) Empty() bool {
	return u.IsRead == nil && u.IsStarred == nil
}

// APIUsage represents upstream API usage for a single UTC day
type APIUsage struct {
	Date       string    `json:"date" db:"usage_date"`
	Zone1Used  int       `json:"zone1_used" db:"zone1_used"`
	Zone1Limit int       `json:"zone1_limit" db:"zone1_limit"`
	Zone2Used  int       `json:"zone2_used" db:"zone2_used"`
	Zone2Limit int       `json:"zone2_limit" db:"zone2_limit"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// UsageReport is the API-facing view of APIUsage
type UsageReport struct {
	Date           string    `json:"date"`
	Zone1Used      int       `json:"zone1_used"`
	Zone1Limit     int       `json:"zone1_limit"`
	Zone1Remaining int       `json:"zone1_remaining"`
	Zone1Percent   float64   `json:"zone1_percent"`
	Zone2Used      int       `json:"zone2_used"`
	Zone2Limit     int       `json:"zone2_limit"`
	Zone2Remaining int       `json:"zone2_remaining"`
	ResetsAt       time.Time `json:"resets_at"`
}

// OAuthToken is a persisted upstream OAuth2 token
type OAuthToken struct {
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Expiry       time.Time `db:"expiry"`
}

// SyncState is the lifecycle state of a sync run
type SyncState string

const (
	SyncPending   SyncState = "pending"
	SyncRunning   SyncState = "running"
	SyncCompleted SyncState = "completed"
	SyncFailed    SyncState = "failed"
)

// SyncStatus is the progress of a single sync run
type SyncStatus struct {
	SyncID    string      `json:"sync_id"`
	Trigger   string      `json:"trigger"`
	State     SyncState   `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Error     string      `json:"error,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	Result    *SyncResult `json:"result,omitempty"`
}

// SyncResult summarises a finished sync run
type SyncResult struct {
	SyncID              string    `json:"sync_id"`
	Trigger             string    `json:"trigger"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	FeedsSynced         int       `json:"feeds_synced"`
	FeedsRemoved        int       `json:"feeds_removed"`
	TagsSynced          int       `json:"tags_synced"`
	ArticlesFetched     int       `json:"articles_fetched"`
	ArticlesAdmitted    int       `json:"articles_admitted"`
	ArticlesSkipped     int       `json:"articles_skipped"`
	ArticlesResurrected int       `json:"articles_resurrected"`
	ChangesPushed       int       `json:"changes_pushed"`
	Error               string    `json:"error,omitempty"`
}

// CleanupResult summarises a retention cleanup run
type CleanupResult struct {
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	ArticlesDeleted    int       `json:"articles_deleted"`
	Chunks             int       `json:"chunks"`
	TombstonesPurged   int       `json:"tombstones_purged"`
	QueueEntriesPurged int       `json:"queue_entries_purged"`
}

// DatabaseStats reports table sizes
type DatabaseStats struct {
	Feeds      int `json:"feeds"`
	Articles   int `json:"articles"`
	Unread     int `json:"unread"`
	Tags       int `json:"tags"`
	Tombstones int `json:"tombstones"`
	QueueSize  int `json:"queue_size"`
}
