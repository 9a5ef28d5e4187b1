package storage

// Schema statements per dialect. Each entry is executed separately.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		site_url TEXT NOT NULL DEFAULT '',
		icon_url TEXT NOT NULL DEFAULT '',
		folder TEXT NOT NULL DEFAULT '',
		unread_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		feed_id TEXT REFERENCES feeds(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		full_content TEXT NOT NULL DEFAULT '',
		has_full_content BOOLEAN NOT NULL DEFAULT FALSE,
		language TEXT NOT NULL DEFAULT '',
		published_at DATETIME,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_starred BOOLEAN NOT NULL DEFAULT FALSE,
		last_local_update DATETIME,
		last_sync_update DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_read_starred ON articles(is_read, is_starred)`,
	`CREATE TABLE IF NOT EXISTS article_tags (
		article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (article_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS deleted_articles (
		inoreader_id TEXT PRIMARY KEY,
		feed_id TEXT,
		was_read BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deleted_articles_deleted_at ON deleted_articles(deleted_at)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT NOT NULL,
		action TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (inoreader_id, action)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_usage (
		usage_date TEXT PRIMARY KEY,
		zone1_used INTEGER NOT NULL DEFAULT 0,
		zone1_limit INTEGER NOT NULL DEFAULT 0,
		zone2_used INTEGER NOT NULL DEFAULT 0,
		zone2_limit INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		provider TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT '',
		expiry DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		preferences TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		site_url TEXT NOT NULL DEFAULT '',
		icon_url TEXT NOT NULL DEFAULT '',
		folder TEXT NOT NULL DEFAULT '',
		unread_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT UNIQUE NOT NULL,
		feed_id TEXT REFERENCES feeds(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		full_content TEXT NOT NULL DEFAULT '',
		has_full_content BOOLEAN NOT NULL DEFAULT FALSE,
		language TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_starred BOOLEAN NOT NULL DEFAULT FALSE,
		last_local_update TIMESTAMPTZ,
		last_sync_update TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_read_starred ON articles(is_read, is_starred)`,
	`CREATE TABLE IF NOT EXISTS article_tags (
		article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (article_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS deleted_articles (
		inoreader_id TEXT PRIMARY KEY,
		feed_id TEXT,
		was_read BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deleted_articles_deleted_at ON deleted_articles(deleted_at)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		inoreader_id TEXT NOT NULL,
		action TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (inoreader_id, action)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_usage (
		usage_date TEXT PRIMARY KEY,
		zone1_used INTEGER NOT NULL DEFAULT 0,
		zone1_limit INTEGER NOT NULL DEFAULT 0,
		zone2_used INTEGER NOT NULL DEFAULT 0,
		zone2_limit INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		provider TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT '',
		expiry TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}
