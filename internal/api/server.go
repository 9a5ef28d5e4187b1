package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rssreader/internal/cache"
	"rssreader/internal/config"
	"rssreader/internal/content"
	"rssreader/internal/inoreader"
	"rssreader/internal/models"
	"rssreader/internal/ratelimit"
	"rssreader/internal/scheduler"
	"rssreader/internal/security"
	"rssreader/internal/storage"
	"rssreader/internal/syncer"
	"rssreader/internal/web"
)

// SyncService starts syncs and reports on them.
type SyncService interface {
	Start(ctx context.Context, trigger string) (string, error)
	Status(syncID string) (*models.SyncStatus, error)
	LastResult(ctx context.Context) (*syncer.LastSync, error)
	IsRunning() bool
}

// Cleaner runs the retention cleanup.
type Cleaner interface {
	Run(ctx context.Context) (models.CleanupResult, error)
}

// UsageReporter exposes the upstream request budget.
type UsageReporter interface {
	Usage(ctx context.Context) (models.UsageReport, error)
	RetryAfter() time.Duration
}

// Subscriptions manages upstream subscriptions.
type Subscriptions interface {
	QuickAdd(ctx context.Context, feedURL string) (*inoreader.QuickAddResult, error)
	Unsubscribe(ctx context.Context, streamID string) error
}

// ContentFetcher downloads article pages and validates feed URLs.
type ContentFetcher interface {
	FetchFullContent(ctx context.Context, url string) (string, error)
	ValidateFeed(ctx context.Context, feedURL string) (*content.FeedPreview, error)
}

// JobScheduler reports on scheduled jobs.
type JobScheduler interface {
	IsRunning() bool
	Jobs() []scheduler.JobInfo
	Trigger(name string) error
}

// Dependencies are the services the API is built on. Scheduler may be nil.
type Dependencies struct {
	Store         storage.Store
	Sync          SyncService
	Cleanup       Cleaner
	Usage         UsageReporter
	Subscriptions Subscriptions
	Fetcher       ContentFetcher
	Scheduler     JobScheduler
	Cache         *cache.Manager
	Logger        *slog.Logger
}

type Server struct {
	router        *gin.Engine
	httpServer    *http.Server
	deps          Dependencies
	auth          *security.Authenticator
	limiter       *security.RateLimiter
	logger        *slog.Logger
	cacheTTL      time.Duration
	swaggerServer *web.SwaggerServer
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewManager(cfg.CacheTTL)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	logger := deps.Logger.With("component", "api")
	limiter := security.SetupSecurityMiddleware(router, cfg.Security, logger)

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		router:        router,
		deps:          deps,
		auth:          security.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.OwnerID),
		limiter:       limiter,
		logger:        logger,
		cacheTTL:      cfg.CacheTTL,
		swaggerServer: web.NewSwaggerServer(cfg.EnableSwagger),
		ctx:           ctx,
		cancel:        cancel,
	}
	server.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.setupRoutes(cfg.EnableMetrics)
	return server
}

func (s *Server) setupRoutes(enableMetrics bool) {
	s.router.GET("/health", s.healthCheck)
	if enableMetrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api", s.auth.Middleware())
	{
		api.GET("/articles", s.listArticles)
		api.POST("/articles/mark-read", s.markRead)
		api.GET("/articles/:id", s.getArticle)
		api.PATCH("/articles/:id", s.updateArticle)
		api.POST("/articles/:id/fetch-content", s.fetchContent)

		api.GET("/feeds", s.listFeeds)
		api.POST("/feeds", s.addFeed)
		api.DELETE("/feeds/:id", s.deleteFeed)

		api.GET("/tags", s.listTags)

		api.GET("/users/preferences", s.getPreferences)
		api.PUT("/users/preferences", s.updatePreferences)

		api.POST("/sync", s.startSync)
		api.GET("/sync/status/:syncId", s.syncStatus)
		api.GET("/sync/last", s.lastSync)
		api.GET("/sync/api-usage", s.apiUsage)
		api.GET("/sync/schedule", s.schedule)
		api.POST("/sync/schedule/:job/trigger", s.triggerJob)

		api.POST("/cleanup", s.runCleanup)
	}

	s.swaggerServer.RegisterRoutes(s.router)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. Idle client rate limiters are
// evicted in the background.
func (s *Server) Start() error {
	if s.limiter != nil {
		go s.evictIdleClients()
	}

	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) evictIdleClients() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.limiter.Cleanup(10 * time.Minute); removed > 0 {
				s.logger.Debug("evicted idle rate limiters", "count", removed)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{
		"status":   "healthy",
		"service":  "rssreader",
		"database": "ok",
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
	}

	if s.deps.Sync != nil {
		if last, err := s.lastSyncResult(ctx); err == nil {
			body["last_sync"] = last
		}
		body["sync_running"] = s.deps.Sync.IsRunning()
	}
	body["scheduler_active"] = s.deps.Scheduler != nil && s.deps.Scheduler.IsRunning()
	body["cache_items"] = s.deps.Cache.ItemCount()

	c.JSON(status, body)
}

// writeError maps domain errors to HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	status, title := http.StatusInternalServerError, "Internal server error"
	message := err.Error()

	var apiErr *inoreader.APIError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, syncer.ErrUnknownSync), errors.Is(err, scheduler.ErrUnknownJob):
		status, title = http.StatusNotFound, "Not found"
	case errors.Is(err, scheduler.ErrJobRunning):
		status, title = http.StatusConflict, "Job running"
	case errors.Is(err, syncer.ErrSyncInProgress):
		status, title = http.StatusConflict, "Sync in progress"
	case errors.Is(err, ratelimit.ErrBudgetExhausted), errors.Is(err, inoreader.ErrRateLimited):
		status, title = http.StatusTooManyRequests, "Rate limit exceeded"
		c.Header("Retry-After", strconv.Itoa(s.retryAfterSeconds()))
	case errors.Is(err, inoreader.ErrUnauthorized):
		status, title = http.StatusBadGateway, "Upstream authorization failed"
	case errors.As(err, &apiErr):
		status, title = http.StatusBadGateway, "Upstream error"
	case errors.Is(err, content.ErrNotAFeed):
		status, title = http.StatusBadRequest, "Invalid feed"
	case errors.Is(err, content.ErrInvalidURL):
		status, title = http.StatusUnprocessableEntity, "Invalid article URL"
	case errors.Is(err, content.ErrNoContent):
		status, title = http.StatusUnprocessableEntity, "No readable content"
	case errors.Is(err, context.DeadlineExceeded):
		status, title = http.StatusGatewayTimeout, "Timeout"
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   title,
		"message": message,
	})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Bad request",
		"message": fmt.Sprintf(format, args...),
	})
}

func (s *Server) retryAfterSeconds() int {
	if s.deps.Usage == nil {
		return 60
	}
	return max(1, int(math.Ceil(s.deps.Usage.RetryAfter().Seconds())))
}
