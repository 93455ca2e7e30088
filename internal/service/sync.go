package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/ocsync/internal/adapter/local"
	"github.com/Ning0612/ocsync/internal/config"
	"github.com/Ning0612/ocsync/internal/core/operation"
	"github.com/Ning0612/ocsync/internal/core/planner"
	"github.com/Ning0612/ocsync/internal/core/rule"
	"github.com/Ning0612/ocsync/internal/lock"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/progress"
	"github.com/Ning0612/ocsync/internal/remote"
	"github.com/Ning0612/ocsync/internal/remote/webdav"
	"github.com/Ning0612/ocsync/internal/state"
	"github.com/Ning0612/ocsync/internal/store"
	"github.com/Ning0612/ocsync/internal/transfer"
	"github.com/Ning0612/ocsync/internal/view"
)

// ServiceOptions are the parts of the stack that come from the caller.
type ServiceOptions struct {
	View     view.View
	Reporter progress.Reporter
	// Server replaces the WebDAV client built from the account config.
	Server remote.Server
}

// SyncService owns the whole stack of one account: stores, server client,
// transfer engine and the screen session.
type SyncService struct {
	config  *config.Config
	db      *sql.DB
	store   *store.Store
	history *state.Manager
	trust   *remote.TrustStore
	journal *transfer.Journal
	bus     *transfer.Bus
	engine  *transfer.Engine
	session *Session
	lock    *lock.FileLock
	local   *local.Storage
	ignore  *rule.Matcher
	log     logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan error
	started bool
}

// NewSyncService builds the stack of the configured account. Nothing runs
// until Start.
func NewSyncService(ctx context.Context, cfg *config.Config, opts ServiceOptions) (svc *SyncService, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if opts.View == nil {
		return nil, fmt.Errorf("view cannot be nil")
	}

	keep, err := rule.NewMatcher(cfg.Sync.KeepInSync)
	if err != nil {
		return nil, err
	}
	ignore, err := rule.NewMatcher(cfg.Sync.Ignore)
	if err != nil {
		return nil, err
	}

	s := &SyncService{
		config: cfg,
		ignore: ignore,
		log:    logger.With("component", "service", "account", cfg.Account.Name),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.lock, err = lock.NewFileLock(cfg.LockDir(), cfg.Account.Name); err != nil {
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}
	// 另一個程序持有帳號時 bbolt 會卡住，先擋下
	if holder, herr := s.lock.GetHolder(); herr == nil {
		return nil, &lock.LockError{Holder: holder, Reason: "account is in use by another process"}
	}

	if s.db, err = store.Open(ctx, cfg.DatabasePath()); err != nil {
		return nil, err
	}
	s.store = store.New(s.db, cfg.Account.Name)
	if _, err = s.store.EnsureRoot(ctx); err != nil {
		return nil, err
	}

	if s.history, err = state.NewManager(cfg.HistoryPath()); err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}
	if s.trust, err = remote.NewTrustStore(cfg.CertPath()); err != nil {
		return nil, err
	}
	if s.journal, err = transfer.OpenJournal(cfg.JournalPath()); err != nil {
		return nil, err
	}
	if s.local, err = local.New(cfg.AccountSaveDir()); err != nil {
		return nil, fmt.Errorf("failed to open save dir: %w", err)
	}

	server := opts.Server
	if server == nil {
		if server, err = s.newServer(ctx); err != nil {
			return nil, err
		}
	}

	s.bus = transfer.NewBus()
	s.engine = transfer.NewEngine(transfer.Options{
		Account:  cfg.Account.Name,
		Server:   server,
		Store:    s.store,
		Uploads:  s.store,
		Local:    s.local,
		Bus:      s.bus,
		Journal:  s.journal,
		Reporter: opts.Reporter,
		Workers:  cfg.Sync.Workers,
	})

	s.session, err = NewSession(Options{
		Store: s.store,
		Operations: operation.Deps{
			Server:  server,
			Engine:  s.engine,
			Local:   s.local,
			Planner: planner.NewDefaultPlanner(keep),
		},
		Bus:        s.bus,
		View:       opts.View,
		History:    s.history,
		Trust:      s.trust,
		GraceDelay: cfg.Sync.GraceDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// newServer builds the WebDAV client. A static token wins over the stored
// OAuth grant, which wins over basic auth.
func (s *SyncService) newServer(ctx context.Context) (remote.Server, error) {
	acc := s.config.Account
	opts := webdav.Options{
		ServerURL:          acc.ServerURL,
		Username:           acc.Username,
		Password:           acc.Password,
		Trust:              s.trust,
		InsecureSkipVerify: acc.InsecureSkipVerify,
	}
	switch {
	case acc.Token != "":
		opts.Tokens = remote.StaticToken(acc.Token)
	case acc.UsesOAuth():
		auth := s.Authenticator()
		tokens, err := auth.TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("no usable OAuth grant, run login first: %w", err)
		}
		opts.Tokens = tokens
	}
	return webdav.New(opts), nil
}

// Authenticator returns the OAuth flow of the account.
func (s *SyncService) Authenticator() *remote.Authenticator {
	acc := s.config.Account
	return remote.NewAuthenticator(acc.ServerURL, acc.OAuthClientID, acc.OAuthClientSecret, s.config.TokenPath())
}

// Start takes the account lock for command and runs the engine and the
// session until ctx is done or Close is called.
func (s *SyncService) Start(ctx context.Context, command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("service is already running")
	}
	if err := s.lock.Acquire(command); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := s.engine.Start(ctx); err != nil {
		cancel()
		s.lock.Release()
		return fmt.Errorf("failed to start transfer engine: %w", err)
	}

	s.cancel = cancel
	s.done = make(chan error, 1)
	s.started = true
	go func() { s.done <- s.session.Run(ctx) }()

	s.log.Info("service started", "command", command)
	return nil
}

// Settle waits until the session is idle and every transfer finished.
func (s *SyncService) Settle(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		idle, err := s.session.Idle(ctx)
		if err != nil {
			return err
		}
		if idle && s.engine.Pending() == 0 {
			// 傳輸結束的事件可能還在迴圈裡，再確認一次
			if idle, err = s.session.Idle(ctx); err != nil || idle {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Session returns the screen session.
func (s *SyncService) Session() *Session { return s.session }

// Store returns the account's file store.
func (s *SyncService) Store() *store.Store { return s.store }

// History returns the sync history.
func (s *SyncService) History() *state.Manager { return s.history }

// Local returns the account save dir.
func (s *SyncService) Local() *local.Storage { return s.local }

// Ignore returns the observer ignore patterns.
func (s *SyncService) Ignore() *rule.Matcher { return s.ignore }

// Config returns the configuration the service was built from.
func (s *SyncService) Config() *config.Config { return s.config }

// IsLocked checks if another process works on the account
func (s *SyncService) IsLocked() bool {
	return s.lock.IsLocked()
}

// GetLockHolder returns information about the current lock holder
func (s *SyncService) GetLockHolder() (*lock.LockInfo, error) {
	return s.lock.GetHolder()
}

// ForceUnlock forcibly releases the lock (use with caution)
func (s *SyncService) ForceUnlock() error {
	return s.lock.ForceRelease()
}

// Close stops everything Start started and releases all resources.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		s.cancel()
		if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		s.started = false
	}
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
		s.history = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Release())
	}
	return errors.Join(errs...)
}
