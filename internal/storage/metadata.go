package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"rssreader/internal/models"
)

// Well-known sync_metadata keys.
const (
	MetaLastSyncTime   = "last_sync_time"
	MetaLastSyncStatus = "last_sync_status"
	MetaLastSyncError  = "last_sync_error"
	MetaLastSyncID     = "last_sync_id"
	MetaLastSyncResult = "last_sync_result"
	MetaLastCleanup    = "last_cleanup_time"
)

func (s *SQLStore) GetMetadata(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM sync_metadata`); err != nil {
		return nil, fmt.Errorf("failed to load sync metadata: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

func (s *SQLStore) SetMetadata(ctx context.Context, values map[string]string) error {
	now := s.now()
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, query, k, v, now); err != nil {
				return fmt.Errorf("failed to save sync metadata %s: %w", k, err)
			}
		}
		return nil
	})
}

// LoadAPIUsage returns nil, nil when the day has no usage row.
func (s *SQLStore) LoadAPIUsage(ctx context.Context, date string) (*models.APIUsage, error) {
	usage := &models.APIUsage{}
	err := s.db.GetContext(ctx, usage, s.db.Rebind(`
		SELECT usage_date, zone1_used, zone1_limit, zone2_used, zone2_limit, updated_at
		FROM api_usage WHERE usage_date = ?`), date)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load API usage: %w", err)
	}
	return usage, nil
}

func (s *SQLStore) SaveAPIUsage(ctx context.Context, usage models.APIUsage) error {
	if usage.UpdatedAt.IsZero() {
		usage.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO api_usage (usage_date, zone1_used, zone1_limit, zone2_used, zone2_limit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (usage_date) DO UPDATE SET
			zone1_used = excluded.zone1_used,
			zone1_limit = excluded.zone1_limit,
			zone2_used = excluded.zone2_used,
			zone2_limit = excluded.zone2_limit,
			updated_at = excluded.updated_at`),
		usage.Date, usage.Zone1Used, usage.Zone1Limit, usage.Zone2Used, usage.Zone2Limit, usage.UpdatedAt.UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("failed to save API usage: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	token := &models.OAuthToken{}
	err := s.db.GetContext(ctx, token, s.db.Rebind(`
		SELECT provider, access_token, refresh_token, token_type, expiry
		FROM oauth_tokens WHERE provider = ?`), provider)
	if err != nil {
		return nil, notFound(err)
	}
	return token, nil
}

func (s *SQLStore) SaveToken(ctx context.Context, token models.OAuthToken) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO oauth_tokens (provider, access_token, refresh_token, token_type, expiry)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry`),
		token.Provider, token.AccessToken, token.RefreshToken, token.TokenType, token.Expiry.UTC())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetPreferences returns the user's stored preferences merged over the defaults.
func (s *SQLStore) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	prefs := models.DefaultPreferences()

	var raw []byte
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT preferences FROM users WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("failed to load preferences: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return models.DefaultPreferences(), fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return prefs, nil
}

func (s *SQLStore) SavePreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (id, preferences, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET preferences = excluded.preferences, updated_at = excluded.updated_at`),
		userID, string(data), s.now())
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Stats reports row counts for the main tables.
func (s *SQLStore) Stats(ctx context.Context) (models.DatabaseStats, error) {
	var stats models.DatabaseStats
	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.Feeds, `SELECT COUNT(*) FROM feeds`},
		{&stats.Articles, `SELECT COUNT(*) FROM articles`},
		{&stats.Unread, `SELECT COUNT(*) FROM articles WHERE is_read = FALSE`},
		{&stats.Tags, `SELECT COUNT(*) FROM tags`},
		{&stats.Tombstones, `SELECT COUNT(*) FROM deleted_articles`},
		{&stats.QueueSize, `SELECT COUNT(*) FROM sync_queue`},
	}

	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dest, c.query); err != nil {
			return stats, fmt.Errorf("failed to collect database stats: %w", err)
		}
	}
	return stats, nil
}
