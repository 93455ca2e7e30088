package service

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/ocsync/internal/coordinator"
	"github.com/Ning0612/ocsync/internal/core/conflict"
	"github.com/Ning0612/ocsync/internal/core/operation"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/remote"
	"github.com/Ning0612/ocsync/internal/state"
	"github.com/Ning0612/ocsync/internal/store"
	"github.com/Ning0612/ocsync/internal/tracker"
	"github.com/Ning0612/ocsync/internal/transfer"
	"github.com/Ning0612/ocsync/internal/view"
)

// Options wires a Session.
type Options struct {
	// Store is the account's file store; Operations.Store defaults to it.
	Store      *store.Store
	Operations operation.Deps
	Bus        *transfer.Bus
	View       view.View

	// History and Trust are optional.
	History *state.Manager
	Trust   *remote.TrustStore

	// GraceDelay is waited between focus and a parked refresh firing.
	GraceDelay time.Duration
	// After replaces time.AfterFunc for delayed refreshes.
	After coordinator.AfterFunc
}

// task runs on the session loop.
type task func(ctx context.Context)

// Session is one screen: everything that changes its state runs on a
// single loop fed by the inbox, so the tracker, the coordinator and the
// resolver need no locking.
type Session struct {
	opts     Options
	account  string
	state    *tracker.Session
	tracker  *tracker.Tracker
	coord    *coordinator.Coordinator
	runner   *operation.Runner
	resolver *conflict.Resolver
	log      logger.Logger

	inbox       *transfer.Queue[task]
	events      <-chan domain.TransferEvent
	unsubscribe func()

	// loop-owned
	ctx          context.Context
	waiters      map[int64]chan domain.Result
	pendingCert  *x509.Certificate
	shownSyncing bool

	runOnce sync.Once
}

// NewSession creates a Session browsing the account root. Events published
// on the bus from now on are kept until Run consumes them.
func NewSession(opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Operations.Engine == nil {
		return nil, fmt.Errorf("transfer engine cannot be nil")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("event bus cannot be nil")
	}
	if opts.View == nil {
		return nil, fmt.Errorf("view cannot be nil")
	}
	if opts.Operations.Store == nil {
		opts.Operations.Store = opts.Store
	}
	if opts.Operations.Uploads == nil {
		opts.Operations.Uploads = opts.Store
	}
	opts.Operations.Account = opts.Store.Account()

	s := &Session{
		opts:     opts,
		account:  opts.Store.Account(),
		state:    tracker.NewSession(opts.Store.Account()),
		resolver: conflict.NewResolver(opts.Operations.Engine),
		log:      logger.With("component", "session", "account", opts.Store.Account()),
		inbox:    transfer.NewQueue[task](),
		waiters:  make(map[int64]chan domain.Result),
		ctx:      context.Background(),
	}

	var err error
	s.tracker, err = tracker.New(opts.Store, opts.Operations.Engine, opts.View, s.state)
	if err != nil {
		return nil, err
	}

	s.runner = operation.NewRunner(opts.Operations, func(res domain.Result) {
		s.post(func(ctx context.Context) { s.handleResult(ctx, res) })
	})

	after := opts.After
	if after == nil {
		after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	s.coord, err = coordinator.New(coordinator.Config{
		GraceDelay: opts.GraceDelay,
		// 計時器在別的 goroutine 觸發，要送回迴圈
		After: func(d time.Duration, fn func()) {
			after(d, func() { s.post(func(context.Context) { fn() }) })
		},
	}, s.runner, s.state)
	if err != nil {
		return nil, err
	}

	s.events, s.unsubscribe = opts.Bus.Subscribe()
	return s, nil
}

// Account returns the account the session works on.
func (s *Session) Account() string {
	return s.account
}

// Run consumes the inbox until ctx is done. Transfer events and operation
// results are handled in arrival order. A session runs once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("session is already running")
	}

	s.ctx = ctx
	s.log.Info("session started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ev := range s.events {
			if !s.post(func(ctx context.Context) { s.tracker.Handle(ctx, ev) }) {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.inbox.Close()
	}()

	for {
		next, ok := s.inbox.Get()
		if !ok {
			break
		}
		next(ctx)
		s.showSyncing()
	}

	s.unsubscribe()
	wg.Wait()
	s.runner.Wait()
	s.log.Info("session stopped")
	return ctx.Err()
}

func (s *Session) post(t task) bool {
	return s.inbox.Add(t)
}

// call runs fn on the loop and waits for it. fn gets the caller's ctx.
func (s *Session) call(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if !s.post(func(context.Context) { done <- fn(ctx) }) {
		return domain.ErrSessionClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) showSyncing() {
	if s.state.SyncInProgress != s.shownSyncing {
		s.shownSyncing = s.state.SyncInProgress
		s.opts.View.ShowSyncing(s.shownSyncing)
	}
}

// Snapshot returns a copy of the screen state.
func (s *Session) Snapshot(ctx context.Context) (tracker.Session, error) {
	var snap tracker.Session
	err := s.call(ctx, func(context.Context) error {
		snap = *s.state
		snap.CurrentFile = cloneRecord(s.state.CurrentFile)
		snap.WaitingToPreview = cloneRecord(s.state.WaitingToPreview)
		snap.WaitingToSend = cloneRecord(s.state.WaitingToSend)
		return nil
	})
	return snap, err
}

func cloneRecord(f *domain.FileRecord) *domain.FileRecord {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// Focus tells the session whether its screen is in front. Refreshes
// requested while in the background wait for focus.
func (s *Session) Focus(ctx context.Context, focused bool) error {
	return s.call(ctx, func(ctx context.Context) error {
		if !focused {
			s.coord.FocusLost()
			return nil
		}
		s.coord.FocusGained()
		s.tracker.RefreshListing(ctx)
		return nil
	})
}

// PendingRefreshes lists folders with a refresh waiting to fire.
func (s *Session) PendingRefreshes(ctx context.Context) ([]string, error) {
	var pending []string
	err := s.call(ctx, func(context.Context) error {
		pending = s.coord.Pending()
		return nil
	})
	return pending, err
}

// Idle reports whether no refresh waits to fire and no operation runs.
func (s *Session) Idle(ctx context.Context) (bool, error) {
	var idle bool
	err := s.call(ctx, func(context.Context) error {
		idle = len(s.coord.Pending()) == 0 && s.runner.Len() == 0
		return nil
	})
	return idle, err
}

// PendingCertificate returns the certificate the trust question is about.
func (s *Session) PendingCertificate(ctx context.Context) (*x509.Certificate, error) {
	var cert *x509.Certificate
	err := s.call(ctx, func(context.Context) error {
		cert = s.pendingCert
		return nil
	})
	return cert, err
}

// lookup returns the stored record of p or ErrNotFound.
func (s *Session) lookup(ctx context.Context, p string) (domain.FileRecord, error) {
	p = domain.CleanPath(p)
	rec, err := s.opts.Store.GetByPath(ctx, p)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if rec == nil {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
	}
	return *rec, nil
}

// waitResult registers a waiter for the operation start returns, on the
// loop, and blocks until its result was handled.
func (s *Session) waitResult(ctx context.Context, start func(ctx context.Context) (int64, error)) (domain.Result, error) {
	ch := make(chan domain.Result, 1)
	err := s.call(ctx, func(ctx context.Context) error {
		id, err := start(ctx)
		if err != nil {
			return err
		}
		s.waiters[id] = ch
		return nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}

func (s *Session) submit(ctx context.Context, op operation.Operation) (domain.Result, error) {
	return s.waitResult(ctx, func(ctx context.Context) (int64, error) {
		return s.coord.Submit(ctx, op), nil
	})
}
