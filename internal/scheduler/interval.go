package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/ocsync/internal/logger"
)

// IntervalScheduler requests refreshes on a fixed period using time.Ticker
type IntervalScheduler struct {
	config    Config
	refresher Refresher
	log       logger.Logger

	mu          sync.RWMutex
	running     bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, refresher Refresher) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if refresher == nil {
		return nil, fmt.Errorf("refresher cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		refresher:   refresher,
		log:         logger.With("component", "scheduler"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop. A stopped scheduler cannot be started
// again.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	s.log.Info("scheduler started", "interval", s.config.Interval, "folders", len(s.config.Folders))

	go s.run(ctx)
	return nil
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	if s.config.Immediate {
		s.round(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

// round asks for every configured folder and books the outcome.
func (s *IntervalScheduler) round(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	s.stats.lastRunTime = now
	s.stats.totalRuns++
	s.stats.nextRunTime = now.Add(s.config.Interval)
	s.mu.Unlock()

	folders := s.config.Folders
	if len(folders) == 0 {
		folders = []string{""}
	}

	var errs []error
	for _, folder := range folders {
		if err := s.refresher.RequestRefresh(ctx, folder); err != nil {
			s.log.Warn("refresh request failed", "folder", folder, "error", err)
			errs = append(errs, fmt.Errorf("folder %q: %w", folder, err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := errors.Join(errs...); err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
		return
	}
	s.stats.successfulRuns++
	s.stats.lastError = ""
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan

	s.log.Info("scheduler stopped")
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
