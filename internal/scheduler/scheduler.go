package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc executes one reconciliation pass.
type RunFunc func(ctx context.Context) error

// Scheduler runs passes on a cron expression. It can be stopped and started
// at runtime through the admin API.
type Scheduler struct {
	spec   string
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	lastRun *time.Time
	lastErr error
}

// New creates a scheduler. It does not start until Start is called.
func New(spec string, run RunFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{spec: spec, run: run, logger: logger}
}

// Start begins scheduling passes. Starting an already running scheduler is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	entryID, err := c.AddFunc(s.spec, s.tick)
	if err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.entryID = entryID
	s.running = true
	s.logger.Info("scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop halts scheduling. A pass already in flight finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.running = false
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	now := time.Now()
	s.mu.Lock()
	s.lastRun = &now
	s.mu.Unlock()

	err := s.run(context.Background())

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("scheduled pass failed", zap.Error(err))
	}
}

// Status describes the scheduler state for the admin API.
type Status struct {
	Running  bool       `json:"running"`
	Schedule string     `json:"schedule"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

// GetStatus returns the current state.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, Schedule: s.spec}
	if s.lastRun != nil {
		at := *s.lastRun
		status.LastRun = &at
	}
	if s.lastErr != nil {
		status.LastErr = s.lastErr.Error()
	}
	if s.running && s.cron != nil {
		next := s.cron.Entry(s.entryID).Next
		if !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}
