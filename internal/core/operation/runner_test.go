package operation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/testutil"
)

type gatedOp struct {
	target  string
	release chan struct{}
}

func (op gatedOp) Kind() domain.OperationKind { return domain.KindSynchronizeFile }
func (op gatedOp) Target() string             { return op.target }

func (op gatedOp) Execute(ctx context.Context, deps Deps) domain.Result {
	select {
	case <-op.release:
		return domain.Result{Code: domain.CodeOK}
	case <-ctx.Done():
		return domain.Result{Code: domain.CodeCancelled, Err: ctx.Err()}
	}
}

type collector struct {
	mu      sync.Mutex
	results []domain.Result
}

func (c *collector) listen(res domain.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *collector) all() []domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Result(nil), c.results...)
}

func TestRunner_DeliversEachResultOnce(t *testing.T) {
	c := &collector{}
	r := NewRunner(Deps{Account: testutil.TestAccount}, c.listen)

	release := make(chan struct{})
	ids := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		id := r.Start(context.Background(), gatedOp{target: "/f", release: release})
		if ids[id] {
			t.Fatalf("Expected unique ids, got %d twice", id)
		}
		ids[id] = true
	}
	close(release)
	r.Wait()

	results := c.all()
	if len(results) != 20 {
		t.Fatalf("Expected 20 results, got %d", len(results))
	}
	seen := make(map[int64]int)
	for _, res := range results {
		seen[res.OperationID]++
		if res.Kind != domain.KindSynchronizeFile {
			t.Errorf("Expected kind synchronize-file, got %v", res.Kind)
		}
		if res.Target != "/f" {
			t.Errorf("Expected target /f, got %q", res.Target)
		}
		if res.Finished.Before(res.Started) {
			t.Errorf("Expected finish after start for #%d", res.OperationID)
		}
	}
	for id := range ids {
		if seen[id] != 1 {
			t.Errorf("Expected one result for #%d, got %d", id, seen[id])
		}
	}
	if r.Len() != 0 {
		t.Errorf("Expected nothing running, got %d", r.Len())
	}
}

func TestRunner_Running(t *testing.T) {
	r := NewRunner(Deps{Account: testutil.TestAccount}, nil)
	release := make(chan struct{})
	r.Start(context.Background(), gatedOp{target: "/Docs/a.txt", release: release})

	if !r.Running(domain.KindSynchronizeFile, "/Docs/a.txt/") {
		t.Error("Expected operation to be running")
	}
	if r.Running(domain.KindRefreshFolder, "/Docs/a.txt") {
		t.Error("Expected kind to be part of the match")
	}

	close(release)
	r.Wait()
	if r.Running(domain.KindSynchronizeFile, "/Docs/a.txt") {
		t.Error("Expected operation to be done")
	}
}

func TestRunner_Cancel(t *testing.T) {
	c := &collector{}
	r := NewRunner(Deps{Account: testutil.TestAccount}, c.listen)
	ctx, cancel := context.WithCancel(context.Background())

	r.Start(ctx, gatedOp{target: "/f", release: make(chan struct{})})
	cancel()

	testutil.AssertEventually(t, 2*time.Second, func() bool { return len(c.all()) == 1 })
	if got := c.all()[0].Code; got != domain.CodeCancelled {
		t.Errorf("Expected CANCELLED, got %v", got)
	}
}

func TestRunner_RunningUntilResultDelivered(t *testing.T) {
	var r *Runner
	lens := make(chan int, 1)
	r = NewRunner(Deps{Account: testutil.TestAccount}, func(res domain.Result) {
		lens <- r.Len()
	})
	release := make(chan struct{})
	r.Start(context.Background(), gatedOp{target: "/f", release: release})
	close(release)
	r.Wait()

	if n := <-lens; n != 1 {
		t.Errorf("Expected the operation to count as running while its result is delivered, got %d", n)
	}
	if r.Len() != 0 {
		t.Errorf("Expected nothing running after delivery, got %d", r.Len())
	}
}
