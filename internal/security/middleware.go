package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rssreader/internal/config"
	"rssreader/internal/logging"
	"rssreader/internal/metrics"
)

// Query parameter bounds for list endpoints
const (
	MaxPageLimit  = 200
	maxIDLength   = 128
	maxQueryValue = 500
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter stores rate limit information per IP
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	r        rate.Limit
	b        int
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		r:        r,
		b:        b,
		now:      time.Now,
	}
}

// GetLimiter returns the rate limiter for the given key (IP address)
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.r, rl.b)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()

	return v.limiter
}

// Cleanup drops limiters not used for maxIdle and returns how many were removed
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// SetupSecurityMiddleware configures all security middleware and returns the
// rate limiter in use, or nil when rate limiting is disabled.
func SetupSecurityMiddleware(router *gin.Engine, cfg config.SecurityConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	// Forwarding headers are only honoured from these peers; nil trusts none.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxy list, forwarding headers ignored", "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	if cfg.EnableRequestID {
		router.Use(requestid.New())
	}

	// Request logging sits before the other guards so rejected requests are logged too.
	router.Use(RequestLoggingMiddleware(logger))

	if cfg.EnableSecurityHeaders {
		router.Use(secure.New(secure.Config{
			SSLRedirect:           false, // TLS is terminated by the reverse proxy
			STSSeconds:            31536000,
			STSIncludeSubdomains:  true,
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			ContentSecurityPolicy: "default-src 'self'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}))
	}

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
		corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
		router.Use(cors.New(corsConfig))
	}

	var limiter *RateLimiter
	if cfg.EnableRateLimit {
		limiter = NewRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
		router.Use(RateLimitMiddleware(limiter))
	}

	if cfg.MaxRequestSize > 0 {
		router.Use(RequestSizeMiddleware(cfg.MaxRequestSize))
	}

	router.Use(InputValidationMiddleware())

	return limiter
}

// RateLimitMiddleware implements rate limiting per IP
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "Request too large",
				"message": "Request body exceeds maximum allowed size",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// InputValidationMiddleware rejects malformed pagination and ID parameters
func InputValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := validateListQuery(c); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid query parameters",
				"message": err.Error(),
			})
			return
		}

		if err := validatePathParams(c); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid path parameters",
				"message": err.Error(),
			})
			return
		}

		c.Next()
	}
}

// RequestLoggingMiddleware logs each request through slog and counts it.
// The request-scoped logger is stored on the request context.
func RequestLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqLogger := logger
		if id := requestid.Get(c); id != "" {
			reqLogger = logger.With("request_id", id)
		}
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTP(c.Request.Method, route, status)

		attrs := []any{
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"user_agent", c.Request.UserAgent(),
		}
		switch {
		case status >= 500:
			reqLogger.Error("request failed", append(attrs, "errors", c.Errors.String())...)
		case status >= 400:
			reqLogger.Warn("request rejected", attrs...)
		default:
			reqLogger.Info("request", attrs...)
		}
	}
}

func validateListQuery(c *gin.Context) error {
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxPageLimit {
			return fmt.Errorf("invalid limit parameter: must be an integer between 1 and %d", MaxPageLimit)
		}
	}

	if offset := c.Query("offset"); offset != "" {
		if !isValidNumber(offset) {
			return fmt.Errorf("invalid offset parameter: must be a non-negative integer")
		}
	}

	for _, key := range []string{"unread", "starred"} {
		if v := c.Query(key); v != "" {
			if _, err := strconv.ParseBool(v); err != nil {
				return fmt.Errorf("invalid %s parameter: must be true or false", key)
			}
		}
	}

	for _, key := range []string{"feed_id", "tag_id", "folder"} {
		if len(c.Query(key)) > maxQueryValue {
			return fmt.Errorf("%s parameter too long: maximum %d characters", key, maxQueryValue)
		}
	}

	return nil
}

func validatePathParams(c *gin.Context) error {
	for _, key := range []string{"id", "syncId"} {
		if id := c.Param(key); id != "" && !isValidID(id) {
			return fmt.Errorf("invalid %s: must contain only alphanumeric characters and hyphens", key)
		}
	}

	return nil
}

// isValidNumber checks if a string is a valid non-negative integer
func isValidNumber(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}

	return true
}

// isValidID accepts UUIDs and similar opaque identifiers
func isValidID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}

	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_') {
			return false
		}
	}

	return true
}
