package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/Ning0612/ocsync/internal/core/operation"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/testutil"
	"github.com/Ning0612/ocsync/internal/tracker"
)

// mockStarter records started operations and hands out ids.
type mockStarter struct {
	ops    []operation.Operation
	nextID int64
}

func (m *mockStarter) Start(ctx context.Context, op operation.Operation) int64 {
	m.ops = append(m.ops, op)
	m.nextID++
	return m.nextID
}

// manualClock collects delayed funcs until the test runs them.
type manualClock struct {
	delays []time.Duration
	funcs  []func()
}

func (m *manualClock) After(d time.Duration, fn func()) {
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, fn)
}

func (m *manualClock) fireAll() {
	funcs := m.funcs
	m.funcs = nil
	for _, fn := range funcs {
		fn()
	}
}

func folder(p string) domain.FileRecord {
	return domain.FileRecord{RemotePath: p, IsFolder: true}
}

func newCoordinator(t *testing.T, config Config) (*Coordinator, *mockStarter, *tracker.Session) {
	t.Helper()
	starter := &mockStarter{}
	session := tracker.NewSession(testutil.TestAccount)
	c, err := New(config, starter, session)
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	return c, starter, session
}

func TestNew_InvalidConfig(t *testing.T) {
	session := tracker.NewSession(testutil.TestAccount)
	if _, err := New(Config{}, nil, session); err == nil {
		t.Error("Expected error for nil starter, got nil")
	}
	if _, err := New(Config{}, &mockStarter{}, nil); err == nil {
		t.Error("Expected error for nil session, got nil")
	}
	if _, err := New(Config{GraceDelay: time.Second}, &mockStarter{}, session); err == nil {
		t.Error("Expected error for grace delay without scheduler, got nil")
	}
}

func TestRequestSync_ParkedUntilFocus(t *testing.T) {
	c, starter, session := newCoordinator(t, Config{})

	c.RequestSync(context.Background(), folder("/Docs"), false)
	if len(starter.ops) != 0 {
		t.Fatalf("Expected no sync without focus, got %d", len(starter.ops))
	}
	if got := c.Pending(); len(got) != 1 || got[0] != "/Docs" {
		t.Fatalf("Expected /Docs pending, got %v", got)
	}

	c.FocusGained()
	if len(starter.ops) != 1 {
		t.Fatalf("Expected sync on focus, got %d", len(starter.ops))
	}
	op, ok := starter.ops[0].(operation.RefreshFolder)
	if !ok {
		t.Fatalf("Expected RefreshFolder, got %T", starter.ops[0])
	}
	if op.Folder.RemotePath != "/Docs" {
		t.Errorf("Expected /Docs, got %s", op.Folder.RemotePath)
	}
	if !session.SyncInProgress || !c.IsSyncInProgress() {
		t.Error("Expected sync in progress")
	}
	if len(c.Pending()) != 0 {
		t.Errorf("Expected nothing pending, got %v", c.Pending())
	}
}

func TestRequestSync_FocusedRunsImmediately(t *testing.T) {
	c, starter, _ := newCoordinator(t, Config{})
	c.FocusGained()

	c.RequestSync(context.Background(), folder("/"), true)
	if len(starter.ops) != 1 {
		t.Fatalf("Expected one sync, got %d", len(starter.ops))
	}
	if !starter.ops[0].(operation.RefreshFolder).IgnoreETag {
		t.Error("Expected ignore etag to be passed on")
	}
}

func TestRequestSync_Coalesced(t *testing.T) {
	c, starter, _ := newCoordinator(t, Config{})

	c.RequestSync(context.Background(), folder("/Docs"), false)
	c.RequestSync(context.Background(), folder("/Docs/"), true)
	c.RequestSync(context.Background(), folder("/Docs"), false)
	c.RequestSync(context.Background(), folder("/Photos"), false)
	c.FocusGained()

	if len(starter.ops) != 2 {
		t.Fatalf("Expected two syncs, got %d", len(starter.ops))
	}
	for _, op := range starter.ops {
		r := op.(operation.RefreshFolder)
		if r.Folder.RemotePath == "/Docs" && !r.IgnoreETag {
			t.Error("Expected merged request to keep ignore etag")
		}
	}
}

func TestRequestSync_GraceDelay(t *testing.T) {
	clock := &manualClock{}
	c, starter, _ := newCoordinator(t, Config{GraceDelay: 300 * time.Millisecond, After: clock.After})
	c.FocusGained()

	c.RequestSync(context.Background(), folder("/Docs"), false)
	if len(starter.ops) != 0 {
		t.Fatal("Expected sync to wait for the grace delay")
	}
	if len(clock.delays) != 1 || clock.delays[0] != 300*time.Millisecond {
		t.Fatalf("Expected one 300ms timer, got %v", clock.delays)
	}

	// 再次取得焦點不會重複排程
	c.FocusGained()
	if len(clock.funcs) != 1 {
		t.Errorf("Expected one timer, got %d", len(clock.funcs))
	}

	clock.fireAll()
	if len(starter.ops) != 1 {
		t.Errorf("Expected sync after the delay, got %d", len(starter.ops))
	}
}

func TestRequestSync_DroppedWhenFocusLost(t *testing.T) {
	clock := &manualClock{}
	c, starter, _ := newCoordinator(t, Config{GraceDelay: time.Second, After: clock.After})
	c.FocusGained()

	c.RequestSync(context.Background(), folder("/Docs"), false)
	c.FocusLost()
	clock.fireAll()

	if len(starter.ops) != 0 {
		t.Errorf("Expected request to be dropped, got %d syncs", len(starter.ops))
	}
	if len(c.Pending()) != 0 {
		t.Errorf("Expected nothing pending, got %v", c.Pending())
	}

	// 焦點回來也不會補跑
	c.FocusGained()
	if len(starter.ops) != 0 {
		t.Errorf("Expected dropped request to stay dropped, got %d syncs", len(starter.ops))
	}
}

func TestRequestSync_CancelledContext(t *testing.T) {
	c, starter, _ := newCoordinator(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	c.RequestSync(ctx, folder("/Docs"), false)
	cancel()
	c.FocusGained()

	if len(starter.ops) != 0 {
		t.Errorf("Expected no sync for a cancelled request, got %d", len(starter.ops))
	}
}

func TestSyncInProgress_ConcurrentFolders(t *testing.T) {
	c, _, session := newCoordinator(t, Config{})
	c.FocusGained()

	c.RequestSync(context.Background(), folder("/a"), false)
	c.RequestSync(context.Background(), folder("/b"), false)

	// 完成順序不必與請求順序相同
	if !c.Accept(domain.Result{OperationID: 2, Kind: domain.KindRefreshFolder}) {
		t.Error("Expected refresh result to be accepted")
	}
	if !session.SyncInProgress {
		t.Error("Expected sync still in progress")
	}
	if !c.Accept(domain.Result{OperationID: 1, Kind: domain.KindRefreshFolder}) {
		t.Error("Expected refresh result to be accepted")
	}
	if session.SyncInProgress || c.IsSyncInProgress() {
		t.Error("Expected no sync in progress")
	}
}

func TestAccept_StaleResultRejected(t *testing.T) {
	c, _, session := newCoordinator(t, Config{})

	x := c.Submit(context.Background(), operation.RenameFile{RemotePath: "/a.txt", NewName: "b.txt"})
	y := c.Submit(context.Background(), operation.RemoveFile{RemotePath: "/c.txt"})
	if session.OpIDWaitingFor != y {
		t.Fatalf("Expected to wait for %d, got %d", y, session.OpIDWaitingFor)
	}

	if !c.Accept(domain.Result{OperationID: y}) {
		t.Error("Expected result for the waited operation to be accepted")
	}
	if session.OpIDWaitingFor != 0 {
		t.Errorf("Expected waiting to end, got %d", session.OpIDWaitingFor)
	}
	if c.Accept(domain.Result{OperationID: x}) {
		t.Error("Expected stale result to be ignored")
	}
}

func TestAccept_AbandonedOperation(t *testing.T) {
	c, _, _ := newCoordinator(t, Config{})

	id := c.Submit(context.Background(), operation.CreateFolder{RemotePath: "/new"})
	c.Abandon()

	if c.Accept(domain.Result{OperationID: id}) {
		t.Error("Expected result of an abandoned operation to be ignored")
	}
}

func TestAccept_UnknownResultPassesThrough(t *testing.T) {
	c, _, _ := newCoordinator(t, Config{})
	if !c.Accept(domain.Result{OperationID: 99, Kind: domain.KindSynchronizeFile}) {
		t.Error("Expected background result to be accepted")
	}
}
