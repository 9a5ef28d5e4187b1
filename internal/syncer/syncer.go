// Package syncer runs the two-way sync between the local store and Inoreader.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rssreader/internal/cache"
	"rssreader/internal/config"
	"rssreader/internal/inoreader"
	"rssreader/internal/metrics"
	"rssreader/internal/models"
	"rssreader/internal/ratelimit"
	"rssreader/internal/storage"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while another runs.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrUnknownSync is returned for a sync ID with no status.
	ErrUnknownSync = errors.New("unknown sync id")
	// ErrSyncDisabled is returned for scheduled runs when the user turned sync off.
	ErrSyncDisabled = errors.New("sync disabled by user preferences")
)

// Sync triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerCLI       = "cli"
)

// Upstream is the part of the Inoreader client used by a sync.
type Upstream interface {
	Subscriptions(ctx context.Context) ([]inoreader.Subscription, error)
	Tags(ctx context.Context) ([]inoreader.Tag, error)
	StreamContents(ctx context.Context, streamID string, opts inoreader.StreamOptions) (*inoreader.Stream, error)
	UnreadCounts(ctx context.Context) (map[string]int, error)
	EditTag(ctx context.Context, ids []string, add, remove string) error
}

// Budget is checked before a sync starts.
type Budget interface {
	Check(ctx context.Context, zone ratelimit.Zone, n int) error
}

// LastSync is the persisted outcome of the most recent sync.
type LastSync struct {
	SyncID string             `json:"sync_id,omitempty"`
	Time   *time.Time         `json:"last_sync_time"`
	Status string             `json:"status"`
	Error  string             `json:"error,omitempty"`
	Result *models.SyncResult `json:"result,omitempty"`
}

type Service struct {
	store    storage.Store
	upstream Upstream
	budget   Budget
	cache    *cache.Manager
	logger   *slog.Logger
	cfg      config.SyncConfig
	userID   string
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	current string
}

// New creates a sync service. budget may be nil to skip the budget check.
func New(store storage.Store, upstream Upstream, budget Budget, cacheManager *cache.Manager, cfg config.SyncConfig, userID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.MaxArticlesPerSync <= 0 {
		cfg.MaxArticlesPerSync = 100
	}
	if cfg.MaxQueueAttempts <= 0 {
		cfg.MaxQueueAttempts = 5
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		upstream: upstream,
		budget:   budget,
		cache:    cacheManager,
		logger:   logger.With("component", "syncer"),
		cfg:      cfg,
		userID:   userID,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches a sync in the background and returns its ID.
func (s *Service) Start(ctx context.Context, trigger string) (string, error) {
	status, maxArticles, err := s.begin(ctx, trigger)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(s.ctx, status, maxArticles)
	}()

	return status.SyncID, nil
}

// Run performs a sync and waits for it to finish.
func (s *Service) Run(ctx context.Context, trigger string) (*models.SyncResult, error) {
	status, maxArticles, err := s.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, status, maxArticles)
}

// Status returns the progress of a sync started within the status TTL.
func (s *Service) Status(syncID string) (*models.SyncStatus, error) {
	v, ok := s.cache.Get(cache.Key(cache.PrefixSyncStatus, syncID))
	if !ok {
		return nil, ErrUnknownSync
	}
	status := v.(models.SyncStatus)
	return &status, nil
}

// IsRunning reports whether a sync is in progress.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastResult returns the stored outcome of the latest sync.
func (s *Service) LastResult(ctx context.Context) (*LastSync, error) {
	meta, err := s.store.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	last := &LastSync{
		SyncID: meta[storage.MetaLastSyncID],
		Status: meta[storage.MetaLastSyncStatus],
		Error:  meta[storage.MetaLastSyncError],
	}
	if last.Status == "" {
		last.Status = "never"
	}
	if raw := meta[storage.MetaLastSyncTime]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			last.Time = &t
		}
	}
	if raw := meta[storage.MetaLastSyncResult]; raw != "" {
		var result models.SyncResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			last.Result = &result
		}
	}
	return last, nil
}

// Shutdown cancels background syncs and waits for them to return.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EstimatedCalls is the number of zone 1 calls a sync of maxArticles needs.
func (s *Service) EstimatedCalls(maxArticles int) int {
	pages := (maxArticles + s.cfg.PageSize - 1) / s.cfg.PageSize
	return 4 + pages
}

// begin claims the single sync slot after checking preferences and budget.
func (s *Service) begin(ctx context.Context, trigger string) (models.SyncStatus, int, error) {
	maxArticles := s.cfg.MaxArticlesPerSync
	prefs, err := s.store.GetPreferences(ctx, s.userID)
	if err != nil {
		s.logger.Warn("failed to load preferences, using defaults", "error", err)
	} else {
		if trigger == TriggerScheduled && !prefs.SyncEnabled {
			return models.SyncStatus{}, 0, ErrSyncDisabled
		}
		if prefs.MaxArticlesPerSync > 0 {
			maxArticles = prefs.MaxArticlesPerSync
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return models.SyncStatus{}, 0, fmt.Errorf("%w: %s", ErrSyncInProgress, s.current)
	}

	if s.budget != nil {
		if err := s.budget.Check(ctx, ratelimit.Zone1, s.EstimatedCalls(maxArticles)); err != nil {
			return models.SyncStatus{}, 0, err
		}
	}

	status := models.SyncStatus{
		SyncID:    uuid.NewString(),
		Trigger:   trigger,
		State:     models.SyncPending,
		Message:   "Sync queued",
		StartedAt: s.now().UTC(),
	}
	s.running = true
	s.current = status.SyncID
	s.saveStatus(status)

	return status, maxArticles, nil
}

func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.current = ""
}

func (s *Service) saveStatus(status models.SyncStatus) {
	s.cache.Set(cache.Key(cache.PrefixSyncStatus, status.SyncID), status, s.cfg.StatusTTL)
}

func (s *Service) progress(status *models.SyncStatus, percent int, message string) {
	status.State = models.SyncRunning
	status.Progress = percent
	status.Message = message
	s.saveStatus(*status)
}

func (s *Service) execute(ctx context.Context, status models.SyncStatus, maxArticles int) (*models.SyncResult, error) {
	defer s.finish()

	logger := s.logger.With("sync_id", status.SyncID, "trigger", status.Trigger)
	logger.Info("sync started", "max_articles", maxArticles)

	result := &models.SyncResult{
		SyncID:    status.SyncID,
		Trigger:   status.Trigger,
		StartedAt: status.StartedAt,
	}

	err := s.steps(ctx, logger, &status, result, maxArticles)

	result.FinishedAt = s.now().UTC()
	duration := result.FinishedAt.Sub(result.StartedAt)

	if err != nil {
		result.Error = err.Error()
		status.State = models.SyncFailed
		status.Error = err.Error()
		status.Message = "Sync failed"
		logger.Error("sync failed", "error", err, "duration", duration)
	} else {
		status.State = models.SyncCompleted
		status.Progress = 100
		status.Message = "Sync completed"
		logger.Info("sync completed",
			"duration", duration,
			"feeds", result.FeedsSynced,
			"admitted", result.ArticlesAdmitted,
			"skipped", result.ArticlesSkipped,
			"resurrected", result.ArticlesResurrected,
			"pushed", result.ChangesPushed)
	}
	status.Result = result
	s.saveStatus(status)
	metrics.RecordSync(status.Trigger, string(status.State), duration)

	// Recording the outcome must not depend on a cancelled sync context.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if recErr := s.recordOutcome(recordCtx, result); recErr != nil {
		logger.Error("failed to record sync outcome", "error", recErr)
	}

	if s.cache != nil {
		s.cache.InvalidateArticles()
		s.cache.Delete(cache.KeyLastSync)
		s.cache.Delete(cache.KeyAPIUsage)
	}

	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) recordOutcome(ctx context.Context, result *models.SyncResult) error {
	state := string(models.SyncCompleted)
	if result.Error != "" {
		state = string(models.SyncFailed)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.store.SetMetadata(ctx, map[string]string{
		storage.MetaLastSyncTime:   result.FinishedAt.Format(time.RFC3339),
		storage.MetaLastSyncStatus: state,
		storage.MetaLastSyncError:  result.Error,
		storage.MetaLastSyncID:     result.SyncID,
		storage.MetaLastSyncResult: string(encoded),
	})
}
