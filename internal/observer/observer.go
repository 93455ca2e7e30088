// Package observer watches the local copies of kept-in-sync files and
// asks for their synchronization when they are edited.
package observer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ning0612/ocsync/internal/core/rule"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
)

// DefaultDebounce is waited after the last write before syncing.
const DefaultDebounce = 500 * time.Millisecond

// Syncer starts a file synchronization without waiting for it.
type Syncer interface {
	SyncInBackground(ctx context.Context, remotePath string, pushOnly bool) error
}

// KeptLister lists the kept-in-sync files of an account.
type KeptLister interface {
	KeptInSync(ctx context.Context) ([]domain.FileRecord, error)
}

// Config contains observer configuration
type Config struct {
	// Ignore matches local names that never trigger a sync.
	Ignore   *rule.Matcher
	Debounce time.Duration
}

// Observer turns file system events on kept-in-sync copies into
// synchronizations. Bursts of writes to one file end in one request.
type Observer struct {
	config Config
	files  KeptLister
	syncer Syncer
	log    logger.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	// kept maps local copy paths to remote paths.
	kept   map[string]string
	dirs   map[string]bool
	timers map[string]*time.Timer
}

// New creates an Observer; call Run to start watching.
func New(config Config, files KeptLister, syncer Syncer) (*Observer, error) {
	if files == nil {
		return nil, fmt.Errorf("file lister cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config.Debounce < 0 {
		return nil, fmt.Errorf("debounce must not be negative, got %v", config.Debounce)
	}
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounce
	}
	return &Observer{
		config: config,
		files:  files,
		syncer: syncer,
		log:    logger.With("component", "observer"),
		kept:   make(map[string]string),
		dirs:   make(map[string]bool),
		timers: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is done.
func (o *Observer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	o.mu.Lock()
	o.watcher = watcher
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.watcher = nil
		o.dirs = make(map[string]bool)
		for p, t := range o.timers {
			t.Stop()
			delete(o.timers, p)
		}
		o.mu.Unlock()
	}()

	if err := o.Rescan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.log.Warn("watcher error", "error", err)
		}
	}
}

// Rescan reloads the kept-in-sync files and watches their folders.
func (o *Observer) Rescan(ctx context.Context) error {
	files, err := o.files.KeptInSync(ctx)
	if err != nil {
		return fmt.Errorf("list kept in sync: %w", err)
	}

	kept := make(map[string]string, len(files))
	for _, f := range files {
		if f.StoragePath == "" {
			continue
		}
		kept[filepath.Clean(f.StoragePath)] = f.RemotePath
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.kept = kept
	if o.watcher == nil {
		return nil
	}
	for local := range kept {
		dir := filepath.Dir(local)
		if o.dirs[dir] {
			continue
		}
		if err := o.watcher.Add(dir); err != nil {
			o.log.Warn("cannot watch folder", "dir", dir, "error", err)
			continue
		}
		o.dirs[dir] = true
	}
	o.log.Debug("kept in sync files rescanned", "files", len(kept), "dirs", len(o.dirs))
	return nil
}

// Watched lists the local copies being observed.
func (o *Observer) Watched() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	paths := make([]string, 0, len(o.kept))
	for p := range o.kept {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (o *Observer) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	local := filepath.Clean(ev.Name)
	if o.config.Ignore.Match(filepath.ToSlash(filepath.Base(local))) {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	remotePath, ok := o.kept[local]
	if !ok {
		return
	}
	if t, ok := o.timers[local]; ok {
		t.Stop()
	}
	o.timers[local] = time.AfterFunc(o.config.Debounce, func() {
		o.mu.Lock()
		delete(o.timers, local)
		o.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		o.log.Info("local change detected", "path", remotePath)
		if err := o.syncer.SyncInBackground(ctx, remotePath, false); err != nil {
			o.log.Warn("failed to request sync", "path", remotePath, "error", err)
		}
	})
}
