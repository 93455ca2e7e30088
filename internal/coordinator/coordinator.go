// Package coordinator schedules folder refreshes and user operations for
// one screen and filters their results.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Ning0612/ocsync/internal/core/operation"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/tracker"
)

// Starter runs operations in the background.
type Starter interface {
	Start(ctx context.Context, op operation.Operation) int64
}

// AfterFunc runs fn after d. The coordinator is not safe for concurrent
// use, so fn must be brought back onto the owning event loop.
type AfterFunc func(d time.Duration, fn func())

// Config contains coordinator configuration
type Config struct {
	// GraceDelay is waited between focus and firing a parked request.
	GraceDelay time.Duration
	// After schedules delayed firing; required when GraceDelay > 0.
	After AfterFunc
}

type request struct {
	ctx        context.Context
	folder     domain.FileRecord
	ignoreETag bool
	armed      bool
}

// Coordinator owns the sync-in-progress and waited-operation fields of a
// session. All methods must be called from the session's event loop.
type Coordinator struct {
	config  Config
	starter Starter
	session *tracker.Session
	log     logger.Logger

	pending map[string]*request
	// syncs maps refresh operation ids to their folder.
	syncs map[int64]string
	// waited holds user operations that were issued and not yet answered.
	waited map[int64]bool
}

// New creates a Coordinator for session.
func New(config Config, starter Starter, session *tracker.Session) (*Coordinator, error) {
	if starter == nil {
		return nil, fmt.Errorf("operation starter cannot be nil")
	}
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config.GraceDelay < 0 {
		return nil, fmt.Errorf("grace delay must not be negative, got %v", config.GraceDelay)
	}
	if config.GraceDelay > 0 && config.After == nil {
		return nil, fmt.Errorf("grace delay needs a scheduler")
	}
	return &Coordinator{
		config:  config,
		starter: starter,
		session: session,
		log:     logger.With("component", "coordinator", "account", session.Account),
		pending: make(map[string]*request),
		syncs:   make(map[int64]string),
		waited:  make(map[int64]bool),
	}, nil
}

// RequestSync asks for a refresh of folder. It runs once the screen has
// focus and the grace delay passed; a request for a folder that is already
// waiting is merged into it.
func (c *Coordinator) RequestSync(ctx context.Context, folder domain.FileRecord, ignoreETag bool) {
	key := domain.CleanPath(folder.RemotePath)
	if req, ok := c.pending[key]; ok {
		req.ignoreETag = req.ignoreETag || ignoreETag
		c.log.Debug("sync request coalesced", "folder", key)
		return
	}

	folder.RemotePath = key
	folder.IsFolder = true
	req := &request{ctx: ctx, folder: folder, ignoreETag: ignoreETag}
	c.pending[key] = req
	if c.session.Focused {
		c.arm(key, req)
	} else {
		c.log.Debug("sync request parked until focus", "folder", key)
	}
}

func (c *Coordinator) arm(key string, req *request) {
	if req.armed {
		return
	}
	req.armed = true
	if c.config.GraceDelay == 0 {
		c.fire(key, req)
		return
	}
	c.config.After(c.config.GraceDelay, func() { c.fire(key, req) })
}

func (c *Coordinator) fire(key string, req *request) {
	if c.pending[key] != req {
		return
	}
	delete(c.pending, key)

	if !c.session.Focused {
		// 沒有焦點就丟掉，焦點回來時會有新的請求
		c.log.Debug("sync request dropped without focus", "folder", key)
		return
	}
	if req.ctx.Err() != nil {
		return
	}

	id := c.starter.Start(req.ctx, operation.RefreshFolder{Folder: req.folder, IgnoreETag: req.ignoreETag})
	c.syncs[id] = key
	c.session.SyncInProgress = true
	c.log.Debug("sync started", "folder", key, "op_id", id, "ignore_etag", req.ignoreETag)
}

// FocusGained arms every parked request.
func (c *Coordinator) FocusGained() {
	c.session.Focused = true
	for _, key := range c.Pending() {
		if req, ok := c.pending[key]; ok {
			c.arm(key, req)
		}
	}
}

// FocusLost makes requests that have not fired yet drop when they do.
func (c *Coordinator) FocusLost() {
	c.session.Focused = false
}

// Pending lists the folders with a request waiting to fire.
func (c *Coordinator) Pending() []string {
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSyncInProgress reports whether a refresh started here has not reported
// back yet. It drives an indicator only.
func (c *Coordinator) IsSyncInProgress() bool {
	return len(c.syncs) > 0
}

// Submit starts a user operation and makes the screen wait for it. Any
// earlier waited operation is abandoned.
func (c *Coordinator) Submit(ctx context.Context, op operation.Operation) int64 {
	id := c.starter.Start(ctx, op)
	c.waited[id] = true
	c.session.OpIDWaitingFor = id
	c.log.Debug("waiting for operation", "op_id", id, "kind", op.Kind().String(), "target", op.Target())
	return id
}

// Abandon stops waiting for the current user operation.
func (c *Coordinator) Abandon() {
	c.session.OpIDWaitingFor = 0
}

// Accept books res and reports whether the screen should act on it.
// Results of abandoned user operations are rejected.
func (c *Coordinator) Accept(res domain.Result) bool {
	if key, ok := c.syncs[res.OperationID]; ok {
		delete(c.syncs, res.OperationID)
		c.session.SyncInProgress = len(c.syncs) > 0
		c.log.Debug("sync finished", "folder", key, "op_id", res.OperationID, "code", res.Code)
		return true
	}

	if c.waited[res.OperationID] {
		delete(c.waited, res.OperationID)
		if res.OperationID != c.session.OpIDWaitingFor {
			c.log.Info("ignoring stale result", "op_id", res.OperationID, "waiting_for", c.session.OpIDWaitingFor)
			return false
		}
		c.session.OpIDWaitingFor = 0
	}
	return true
}
