package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// InoreaderConfig represents upstream API configuration
type InoreaderConfig struct {
	BaseURL        string
	AuthURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AccessToken    string
	RefreshToken   string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
}

// RateLimitConfig represents the daily upstream budget
type RateLimitConfig struct {
	Zone1DailyLimit     int
	Zone2DailyLimit     int
	SafetyBufferPercent int
}

// SyncConfig represents sync job configuration
type SyncConfig struct {
	Enabled            bool
	Schedule           string
	CleanupSchedule    string
	Timezone           string
	MaxArticlesPerSync int
	PageSize           int
	MaxQueueAttempts   int
	StatusTTL          time.Duration
}

// RetentionConfig represents cleanup policy
type RetentionConfig struct {
	ReadArticleRetention time.Duration
	TombstoneRetention   time.Duration
	MaxArticlesPerFeed   int
	DeleteChunkSize      int
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
	TrustedProxies        []string
}

// AuthConfig represents API authentication configuration.
// OwnerID is the user the Inoreader account belongs to: preferences are
// stored under it, and with JWT auth enabled only tokens for it are accepted.
type AuthConfig struct {
	JWTSecret string
	OwnerID   string
}

type Config struct {
	Port          int
	DatabaseURL   string
	DataDir       string
	CacheTTL      time.Duration
	LogLevel      string
	LogFormat     string
	EnableSwagger bool
	EnableMetrics bool
	Inoreader     InoreaderConfig
	RateLimit     RateLimitConfig
	Sync          SyncConfig
	Retention     RetentionConfig
	Security      SecurityConfig
	Auth          AuthConfig
}

// Load reads configuration from the environment, after merging an optional .env file
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DataDir:       getEnv("DATA_DIR", "./data"),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		EnableSwagger: getEnvAsBool("ENABLE_SWAGGER", true),
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		Inoreader:     loadInoreaderConfig(),
		RateLimit:     loadRateLimitConfig(),
		Sync:          loadSyncConfig(),
		Retention:     loadRetentionConfig(),
		Security:      loadSecurityConfig(),
		Auth:          loadAuthConfig(),
	}, nil
}

// loadDotEnv merges path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func loadInoreaderConfig() InoreaderConfig {
	return InoreaderConfig{
		BaseURL:        getEnv("INOREADER_BASE_URL", "https://www.inoreader.com/reader/api/0"),
		AuthURL:        getEnv("INOREADER_AUTH_URL", "https://www.inoreader.com/oauth2/auth"),
		TokenURL:       getEnv("INOREADER_TOKEN_URL", "https://www.inoreader.com/oauth2/token"),
		ClientID:       getEnv("INOREADER_CLIENT_ID", ""),
		ClientSecret:   getEnv("INOREADER_CLIENT_SECRET", ""),
		RedirectURL:    getEnv("INOREADER_REDIRECT_URI", ""),
		AccessToken:    getEnv("INOREADER_ACCESS_TOKEN", ""),
		RefreshToken:   getEnv("INOREADER_REFRESH_TOKEN", ""),
		RequestTimeout: getEnvAsDuration("INOREADER_TIMEOUT", 30*time.Second),
		RetryAttempts:  getEnvAsInt("INOREADER_RETRY_ATTEMPTS", 3),
		RetryBackoff:   getEnvAsDuration("INOREADER_RETRY_BACKOFF", 5*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Zone1DailyLimit:     getEnvAsInt("INOREADER_ZONE1_LIMIT", 100),
		Zone2DailyLimit:     getEnvAsInt("INOREADER_ZONE2_LIMIT", 100),
		SafetyBufferPercent: getEnvAsInt("INOREADER_SAFETY_BUFFER_PERCENT", 10),
	}
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Enabled:            getEnvAsBool("SYNC_ENABLED", true),
		Schedule:           getEnv("SYNC_SCHEDULE", "0 2,14 * * *"),
		CleanupSchedule:    getEnv("CLEANUP_SCHEDULE", "30 3 * * *"),
		Timezone:           getEnv("SYNC_TIMEZONE", "America/Toronto"),
		MaxArticlesPerSync: getEnvAsInt("SYNC_MAX_ARTICLES", 100),
		PageSize:           getEnvAsInt("SYNC_PAGE_SIZE", 100),
		MaxQueueAttempts:   getEnvAsInt("SYNC_QUEUE_MAX_ATTEMPTS", 5),
		StatusTTL:          getEnvAsDuration("SYNC_STATUS_TTL", time.Hour),
	}
}

func loadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ReadArticleRetention: getEnvAsDuration("READ_ARTICLE_RETENTION", 30*24*time.Hour),
		TombstoneRetention:   getEnvAsDuration("TOMBSTONE_RETENTION", 90*24*time.Hour),
		MaxArticlesPerFeed:   getEnvAsInt("MAX_ARTICLES_PER_FEED", 0),
		DeleteChunkSize:      getEnvAsInt("DELETE_CHUNK_SIZE", 200),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 1<<20), // 1MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
		TrustedProxies:        getEnvAsStringSlice("TRUSTED_PROXIES", nil),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		OwnerID:   getEnv("AUTH_OWNER_ID", getEnv("DEFAULT_USER_ID", "default")),
	}
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		origins := strings.Split(val, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return origins
	}
	return defaultVal
}
