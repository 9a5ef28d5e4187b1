// Package scheduler runs the periodic sync and cleanup jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rssreader/internal/config"
	"rssreader/internal/models"
	"rssreader/internal/syncer"
)

// Job names.
const (
	JobSync    = "sync"
	JobCleanup = "cleanup"
)

// ErrUnknownJob is returned by Trigger for a job that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// ErrJobRunning is returned by Trigger while the job is still running.
var ErrJobRunning = errors.New("job already running")

// SyncRunner runs one sync to completion.
type SyncRunner interface {
	Run(ctx context.Context, trigger string) (*models.SyncResult, error)
}

// CleanupRunner runs one retention cleanup.
type CleanupRunner interface {
	Run(ctx context.Context) (models.CleanupResult, error)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Running  bool      `json:"running"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
}

type job struct {
	name     string
	schedule string
	entry    cron.EntryID
	run      func(ctx context.Context) error

	running bool
	lastRun time.Time
	lastErr string
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobs      map[string]*job
	isRunning bool
}

// New registers the sync and cleanup jobs on their cron schedules, evaluated
// in cfg.Timezone. cleanup may be nil.
func New(cfg config.SyncConfig, runner SyncRunner, cleanup CleanupRunner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}

	if runner != nil {
		err := s.add(JobSync, cfg.Schedule, func(ctx context.Context) error {
			_, err := runner.Run(ctx, syncer.TriggerScheduled)
			if errors.Is(err, syncer.ErrSyncDisabled) {
				logger.Info("scheduled sync skipped, disabled in preferences")
				return nil
			}
			return err
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}

	if cleanup != nil && cfg.CleanupSchedule != "" {
		err := s.add(JobCleanup, cfg.CleanupSchedule, func(ctx context.Context) error {
			_, err := cleanup.Run(ctx)
			return err
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(name, schedule string, run func(ctx context.Context) error) error {
	j := &job{name: name, schedule: schedule, run: run}

	id, err := s.cron.AddFunc(schedule, func() { s.runJob(j) })
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, schedule, err)
	}
	j.entry = id
	s.jobs[name] = j
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.cron.Start()
	for _, info := range s.Jobs() {
		s.logger.Info("scheduled job", "job", info.Name, "schedule", info.Schedule, "next_run", info.NextRun)
	}
}

// Stop halts the schedule and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Trigger runs a job now, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	running := ok && j.running
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if running {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(j)
	}()
	return nil
}

// Jobs reports every registered job with its next and last run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, name := range []string{JobSync, JobCleanup} {
		j, ok := s.jobs[name]
		if !ok {
			continue
		}
		infos = append(infos, JobInfo{
			Name:     j.name,
			Schedule: j.schedule,
			Running:  j.running,
			NextRun:  s.cron.Entry(j.entry).Next,
			LastRun:  j.lastRun,
			LastErr:  j.lastErr,
		})
	}
	return infos
}

// runJob executes j unless a previous run of it is still going.
func (s *Scheduler) runJob(j *job) {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.logger.Warn("skipping job, previous run still in progress", "job", j.name)
		return
	}
	j.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info("job started", "job", j.name)
	err := j.run(s.ctx)

	s.mu.Lock()
	j.running = false
	j.lastRun = start
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", j.name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job completed", "job", j.name, "duration", time.Since(start))
}
