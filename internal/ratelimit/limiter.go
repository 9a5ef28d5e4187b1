// Package ratelimit tracks the daily Inoreader request budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rssreader/internal/metrics"
	"rssreader/internal/models"
)

// Zone is an Inoreader request budget. Zone 1 covers reads, zone 2 writes.
type Zone int

const (
	Zone1 Zone = 1
	Zone2 Zone = 2
)

// ErrBudgetExhausted is returned when a request would exceed today's budget.
var ErrBudgetExhausted = errors.New("upstream API budget exhausted")

var warnThresholds = []float64{80, 95}

// UsageStore persists per-day usage. LoadAPIUsage returns nil, nil when the
// day has no row yet.
type UsageStore interface {
	LoadAPIUsage(ctx context.Context, date string) (*models.APIUsage, error)
	SaveAPIUsage(ctx context.Context, usage models.APIUsage) error
}

// Config holds the configured daily limits.
type Config struct {
	Zone1DailyLimit     int
	Zone2DailyLimit     int
	SafetyBufferPercent int
}

type Limiter struct {
	store  UsageStore
	logger *slog.Logger
	cfg    Config
	now    func() time.Time

	mu     sync.Mutex
	usage  models.APIUsage
	loaded bool
	warned map[float64]bool
}

// New creates a limiter. store may be nil, in which case usage is kept in memory only.
func New(store UsageStore, cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		logger: logger.With("component", "ratelimit"),
		cfg:    cfg,
		now:    time.Now,
		warned: make(map[float64]bool),
	}
}

// Reserve records n upcoming calls against zone, failing with
// ErrBudgetExhausted when the buffered limit would be exceeded.
func (l *Limiter) Reserve(ctx context.Context, zone Zone, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDay(ctx); err != nil {
		return err
	}

	used, limit := l.zone(zone)
	allowed := l.allowed(limit)
	if *used+n > allowed {
		return fmt.Errorf("%w: zone %d used %d of %d (buffered limit %d)", ErrBudgetExhausted, zone, *used, *limit, allowed)
	}

	*used += n
	l.checkThresholds()
	return l.save(ctx)
}

// Check reports whether n calls fit in the remaining budget without reserving them.
func (l *Limiter) Check(ctx context.Context, zone Zone, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDay(ctx); err != nil {
		return err
	}

	used, limit := l.zone(zone)
	allowed := l.allowed(limit)
	if *used+n > allowed {
		return fmt.Errorf("%w: zone %d needs %d calls, %d left", ErrBudgetExhausted, zone, n, max(allowed-*used, 0))
	}
	return nil
}

// Observe overwrites local counters with the values reported in
// Inoreader's X-Reader-Zone{1,2}-Usage/-Limit response headers.
func (l *Limiter) Observe(ctx context.Context, h http.Header) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDay(ctx); err != nil {
		return err
	}

	changed := false
	for _, zone := range []Zone{Zone1, Zone2} {
		used, limit := l.zone(zone)
		if v, ok := headerInt(h, fmt.Sprintf("X-Reader-Zone%d-Usage", zone)); ok {
			*used = v
			changed = true
		}
		if v, ok := headerInt(h, fmt.Sprintf("X-Reader-Zone%d-Limit", zone)); ok && v > 0 {
			*limit = v
			changed = true
		}
	}
	if !changed {
		return nil
	}

	l.checkThresholds()
	return l.save(ctx)
}

// Usage returns today's usage report.
func (l *Limiter) Usage(ctx context.Context) (models.UsageReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDay(ctx); err != nil {
		return models.UsageReport{}, err
	}

	u := l.usage
	return models.UsageReport{
		Date:           u.Date,
		Zone1Used:      u.Zone1Used,
		Zone1Limit:     u.Zone1Limit,
		Zone1Remaining: max(u.Zone1Limit-u.Zone1Used, 0),
		Zone1Percent:   percent(u.Zone1Used, u.Zone1Limit),
		Zone2Used:      u.Zone2Used,
		Zone2Limit:     u.Zone2Limit,
		Zone2Remaining: max(u.Zone2Limit-u.Zone2Used, 0),
		ResetsAt:       l.resetAt(),
	}, nil
}

// RetryAfter is the time left until the budget resets at the next UTC midnight.
func (l *Limiter) RetryAfter() time.Duration {
	return l.resetAt().Sub(l.now().UTC())
}

func (l *Limiter) resetAt() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// ensureDay loads or resets the counters for the current UTC day. Callers hold mu.
func (l *Limiter) ensureDay(ctx context.Context) error {
	today := l.now().UTC().Format(time.DateOnly)
	if l.loaded && l.usage.Date == today {
		return nil
	}

	l.usage = models.APIUsage{
		Date:       today,
		Zone1Limit: l.cfg.Zone1DailyLimit,
		Zone2Limit: l.cfg.Zone2DailyLimit,
	}
	l.warned = make(map[float64]bool)
	l.loaded = true

	if l.store == nil {
		return nil
	}

	stored, err := l.store.LoadAPIUsage(ctx, today)
	if err != nil {
		l.loaded = false
		return fmt.Errorf("failed to load API usage: %w", err)
	}
	if stored != nil {
		l.usage = *stored
		if l.usage.Zone1Limit <= 0 {
			l.usage.Zone1Limit = l.cfg.Zone1DailyLimit
		}
		if l.usage.Zone2Limit <= 0 {
			l.usage.Zone2Limit = l.cfg.Zone2DailyLimit
		}
	}
	return nil
}

func (l *Limiter) zone(z Zone) (used, limit *int) {
	if z == Zone2 {
		return &l.usage.Zone2Used, &l.usage.Zone2Limit
	}
	return &l.usage.Zone1Used, &l.usage.Zone1Limit
}

func (l *Limiter) allowed(limit *int) int {
	return *limit - *limit*l.cfg.SafetyBufferPercent/100
}

func (l *Limiter) checkThresholds() {
	p := percent(l.usage.Zone1Used, l.usage.Zone1Limit)
	for _, threshold := range warnThresholds {
		if p >= threshold && !l.warned[threshold] {
			l.warned[threshold] = true
			l.logger.Warn("upstream API usage high",
				"zone", 1,
				"used", l.usage.Zone1Used,
				"limit", l.usage.Zone1Limit,
				"threshold_percent", threshold)
		}
	}
}

func (l *Limiter) save(ctx context.Context) error {
	metrics.SetUpstreamUsage(int(Zone1), l.usage.Zone1Used)
	metrics.SetUpstreamUsage(int(Zone2), l.usage.Zone2Used)

	l.usage.UpdatedAt = l.now().UTC()
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveAPIUsage(ctx, l.usage); err != nil {
		return fmt.Errorf("failed to save API usage: %w", err)
	}
	return nil
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func percent(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
