// Package conflict turns the user's answer to a sync conflict into exactly
// one transfer command.
package conflict

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
)

// State of a Resolver.
type State int

const (
	Idle State = iota
	AwaitingDecision
	Cancelled
	ApplyLocal
	ApplyServer
	KeepBoth
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDecision:
		return "awaiting-decision"
	case Cancelled:
		return "cancelled"
	case ApplyLocal:
		return "apply-local"
	case ApplyServer:
		return "apply-server"
	case KeepBoth:
		return "keep-both"
	}
	return "unknown"
}

// Resolver holds at most one open conflict. Decide moves it through one
// terminal state and back to Idle.
type Resolver struct {
	engine domain.TransferEngine
	log    logger.Logger

	mu      sync.Mutex
	state   State
	account string
	file    domain.FileRecord
}

// NewResolver creates a Resolver issuing commands to engine
func NewResolver(engine domain.TransferEngine) *Resolver {
	return &Resolver{
		engine: engine,
		log:    logger.With("component", "conflict"),
	}
}

// Open starts resolution for the file of a SYNC_CONFLICT result.
func (r *Resolver) Open(account string, res domain.Result) error {
	if res.Code != domain.CodeSyncConflict || res.File == nil {
		return fmt.Errorf("%w: result is %s", domain.ErrNoConflict, res.Code)
	}
	return r.open(account, res.File.File)
}

// OpenMarked starts resolution for a stored file carrying a conflict marker.
func (r *Resolver) OpenMarked(account string, file domain.FileRecord) error {
	if !file.InConflict() {
		return fmt.Errorf("%w: %s", domain.ErrNoConflict, file.RemotePath)
	}
	return r.open(account, file)
}

func (r *Resolver) open(account string, file domain.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		return fmt.Errorf("%w: %s", domain.ErrConflictOpen, r.file.RemotePath)
	}
	r.state = AwaitingDecision
	r.account = account
	r.file = file
	r.log.Info("conflict opened", "path", file.RemotePath, "etag_in_conflict", file.ETagInConflict)
	return nil
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// File returns the file awaiting a decision.
func (r *Resolver) File() (domain.FileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file, r.state == AwaitingDecision
}

// Decide applies d and returns the terminal state it went through. An
// unknown decision is handled as a cancel. Deciding twice on the same
// conflict fails with ErrConflictClosed.
func (r *Resolver) Decide(ctx context.Context, d domain.Decision) (State, error) {
	r.mu.Lock()
	if r.state != AwaitingDecision {
		r.mu.Unlock()
		return Idle, domain.ErrConflictClosed
	}
	account, file := r.account, r.file
	r.state, r.account, r.file = Idle, "", domain.FileRecord{}
	r.mu.Unlock()

	if !d.IsValid() {
		r.log.Warn("unknown conflict decision, cancelling", "decision", string(d), "path", file.RemotePath)
		d = domain.DecisionCancel
	}

	log := r.log.With("path", file.RemotePath, "decision", string(d))
	switch d {
	case domain.DecisionLocal:
		if err := r.upload(ctx, account, file, domain.BehaviorMove, true, domain.OriginConflict); err != nil {
			return ApplyLocal, err
		}
		log.Info("keeping local copy")
		return ApplyLocal, nil

	case domain.DecisionServer:
		if err := r.engine.RequestDownload(ctx, account, file); err != nil {
			return ApplyServer, fmt.Errorf("download server copy: %w", err)
		}
		log.Info("keeping server copy")
		return ApplyServer, nil

	case domain.DecisionKeepBoth:
		// 上傳路徑負責避開重名；本地副本跟著新檔走，原檔之後改抓伺服器版本
		if err := r.upload(ctx, account, file, domain.BehaviorMove, false, domain.OriginUser); err != nil {
			return KeepBoth, err
		}
		log.Info("keeping both copies")
		return KeepBoth, nil
	}

	log.Info("conflict resolution cancelled")
	return Cancelled, nil
}

func (r *Resolver) upload(ctx context.Context, account string, file domain.FileRecord, behavior domain.UploadBehavior, force bool, origin domain.UploadOrigin) error {
	if file.StoragePath == "" {
		return fmt.Errorf("upload local copy of %s: %w", file.RemotePath, domain.ErrNotFound)
	}
	err := r.engine.RequestUpload(ctx, domain.UploadRequest{
		Account:        account,
		LocalPaths:     []string{file.StoragePath},
		RemotePaths:    []string{file.RemotePath},
		Behavior:       behavior,
		CreateParents:  false,
		ForceOverwrite: force,
		Origin:         origin,
	})
	if err != nil {
		return fmt.Errorf("upload local copy of %s: %w", file.RemotePath, err)
	}
	return nil
}
