package operation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Listener receives the result of every operation a Runner started.
// It is called from the operation's goroutine and must not block.
type Listener func(domain.Result)

// Runner executes operations in the background and hands each result to
// the listener exactly once, tagged with the id Start returned.
type Runner struct {
	deps     Deps
	listener Listener
	nextID   atomic.Int64

	mu      sync.Mutex
	running map[int64]Operation
	wg      sync.WaitGroup
}

// NewRunner creates a Runner
func NewRunner(deps Deps, listener Listener) *Runner {
	return &Runner{
		deps:     deps.withDefaults(),
		listener: listener,
		running:  make(map[int64]Operation),
	}
}

// Start runs op on its own goroutine and returns its operation id.
func (r *Runner) Start(ctx context.Context, op Operation) int64 {
	id := r.nextID.Add(1)

	r.mu.Lock()
	r.running[id] = op
	r.mu.Unlock()

	log := r.deps.Log.With("op_id", id, "kind", op.Kind().String(), "target", op.Target())
	log.Debug("operation started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		started := r.deps.Now()
		res := op.Execute(ctx, r.deps)
		res.OperationID = id
		res.Kind = op.Kind()
		res.Target = op.Target()
		res.Started = started
		res.Finished = r.deps.Now()

		if res.Success() {
			log.Debug("operation finished", "duration", res.Finished.Sub(started))
		} else {
			log.Info("operation failed", "code", res.Code, "error", res.Err)
		}
		// 先交出結果再移除，Len 為 0 時結果必已送出
		if r.listener != nil {
			r.listener(res)
		}

		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
	}()
	return id
}

// Running reports whether an operation of kind on target is in flight.
func (r *Runner) Running(kind domain.OperationKind, target string) bool {
	target = domain.CleanPath(target)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range r.running {
		if op.Kind() == kind && op.Target() == target {
			return true
		}
	}
	return false
}

// Len returns the number of operations whose result was not yet handed
// to the listener.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Wait blocks until every started operation delivered its result.
func (r *Runner) Wait() {
	r.wg.Wait()
}
