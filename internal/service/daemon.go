package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/ocsync/internal/config"
	"github.com/Ning0612/ocsync/internal/daemon"
	"github.com/Ning0612/ocsync/internal/observer"
	"github.com/Ning0612/ocsync/internal/scheduler"
	"github.com/Ning0612/ocsync/internal/state"
)

// DaemonService keeps an account in sync in the background: the browsed
// folder is refreshed on a timer and edited kept-in-sync copies are
// pushed as they change.
type DaemonService struct {
	mu        sync.RWMutex
	svc       *SyncService
	scheduler scheduler.Scheduler
	observer  *observer.Observer
	pidFile   *daemon.PIDFile
	cancel    context.CancelFunc
	done      chan struct{}
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	SchedulerStats *scheduler.Status
	Watched        int
	LastSync       *state.SyncRecord
}

// NewDaemonService creates a daemon around an account stack.
func NewDaemonService(svc *SyncService) (*DaemonService, error) {
	if svc == nil {
		return nil, fmt.Errorf("sync service cannot be nil")
	}
	cfg := svc.Config()
	return &DaemonService{
		svc:     svc,
		pidFile: daemon.NewPIDFile(daemon.PIDPath(config.ExpandPath(cfg.Storage.DataDir), cfg.Account.Name)),
	}, nil
}

// PIDFile returns the file recording the running watch.
func (d *DaemonService) PIDFile() *daemon.PIDFile {
	return d.pidFile
}

// Start runs the service, the observer and the scheduler. folders are
// refreshed every interval; none means the browsed folder.
func (d *DaemonService) Start(ctx context.Context, interval time.Duration, folders []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil {
		return fmt.Errorf("daemon is already running")
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}
	if err := d.pidFile.Write(); err != nil {
		return err
	}
	fail := func(err error) error {
		d.pidFile.Remove()
		return err
	}

	if err := d.svc.Start(ctx, "watch"); err != nil {
		return fail(fmt.Errorf("failed to start service: %w", err))
	}
	session := d.svc.Session()
	// 背景常駐視為一直在前景
	if err := session.Focus(ctx, true); err != nil {
		return fail(err)
	}

	cfg := d.svc.Config()
	obs, err := observer.New(observer.Config{Ignore: d.svc.Ignore(), Debounce: cfg.Sync.Debounce}, d.svc.Store(), session)
	if err != nil {
		return fail(fmt.Errorf("failed to create observer: %w", err))
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:  interval,
		Folders:   folders,
		Immediate: true,
	}, &watchRefresher{session: session, observer: obs})
	if err != nil {
		return fail(fmt.Errorf("failed to create scheduler: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := obs.Run(runCtx); err != nil {
			session.log.Error("observer stopped", "error", err)
		}
	}()

	if err := sched.Start(runCtx); err != nil {
		cancel()
		<-done
		return fail(fmt.Errorf("failed to start scheduler: %w", err))
	}

	d.scheduler, d.observer, d.cancel, d.done = sched, obs, cancel, done
	return nil
}

// Stop stops the daemon
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler == nil {
		return fmt.Errorf("daemon is not running")
	}
	return d.stopLocked()
}

func (d *DaemonService) stopLocked() error {
	var errs []error
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}
	d.cancel()
	<-d.done
	d.scheduler, d.observer = nil, nil
	errs = append(errs, d.pidFile.Remove())
	return errors.Join(errs...)
}

// Status returns the current daemon status
func (d *DaemonService) Status(ctx context.Context) *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{Running: d.scheduler != nil}
	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
		status.Watched = len(d.observer.Watched())
	}

	if h := d.svc.History(); h != nil {
		history, err := h.History(ctx, d.svc.Config().Account.Name, 1)
		if err == nil && len(history) > 0 {
			status.LastSync = &history[0]
		}
	}
	return status
}

// Close stops the daemon and releases the account stack.
func (d *DaemonService) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.scheduler != nil {
		errs = append(errs, d.stopLocked())
	}
	errs = append(errs, d.svc.Close())
	return errors.Join(errs...)
}

// watchRefresher implements scheduler.Refresher. Each round also picks up
// files pinned since the last one.
type watchRefresher struct {
	session  *Session
	observer *observer.Observer
}

func (r *watchRefresher) RequestRefresh(ctx context.Context, folder string) error {
	if err := r.observer.Rescan(ctx); err != nil {
		return err
	}
	return r.session.RequestRefresh(ctx, folder)
}
