package tracker

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/store"
	"github.com/Ning0612/ocsync/internal/testutil"
	"github.com/Ning0612/ocsync/internal/view"
)

type harness struct {
	ctx     context.Context
	st      *store.Store
	engine  *testutil.RecordingEngine
	view    *testutil.RecordingView
	tracker *Tracker
	session *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:     context.Background(),
		st:      testutil.NewStore(t),
		engine:  testutil.NewRecordingEngine(),
		view:    &testutil.RecordingView{},
		session: NewSession(testutil.TestAccount),
	}
	tr, err := New(h.st, h.engine, h.view, h.session)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	h.tracker = tr
	return h
}

// put stores a record and its missing parent folders.
func (h *harness) put(t *testing.T, f domain.FileRecord) domain.FileRecord {
	t.Helper()
	f.RemotePath = domain.CleanPath(f.RemotePath)
	parent, err := h.st.GetByPath(h.ctx, domain.ParentPath(f.RemotePath))
	if err != nil {
		t.Fatalf("Failed to read parent: %v", err)
	}
	if parent == nil {
		p := h.put(t, domain.FileRecord{RemotePath: domain.ParentPath(f.RemotePath), IsFolder: true})
		parent = &p
	}
	f.ParentID = parent.ID
	if err := h.st.Upsert(h.ctx, &f); err != nil {
		t.Fatalf("Failed to store %s: %v", f.RemotePath, err)
	}
	return f
}

func (h *harness) markDown(t *testing.T, f domain.FileRecord) domain.FileRecord {
	t.Helper()
	f.StoragePath = "/save" + f.RemotePath
	f.LastSyncForData = 1700000000000
	if err := h.st.Upsert(h.ctx, &f); err != nil {
		t.Fatalf("Failed to store %s: %v", f.RemotePath, err)
	}
	return f
}

func finished(typ domain.EventType, p string, success bool) domain.TransferEvent {
	return domain.TransferEvent{Type: typ, AccountName: testutil.TestAccount, RemotePath: p, Success: success}
}

func snapshot(s *Session) Session {
	c := *s
	for _, f := range []**domain.FileRecord{&c.CurrentFile, &c.WaitingToPreview, &c.WaitingToSend} {
		if *f != nil {
			v := **f
			*f = &v
		}
	}
	return c
}

func TestHandle_DescendantRefresh(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		linked  string
		account string
		want    bool
	}{
		{name: "parent", dir: "/a/b", want: true},
		{name: "ancestor", dir: "/a", want: true},
		{name: "root", dir: "/", want: true},
		{name: "sibling", dir: "/a/x", want: false},
		{name: "prefix only", dir: "/a/bb", want: false},
		{name: "other account", dir: "/a/b", account: "bob@cloud.example.com", want: false},
		{name: "linked above", dir: "/a/b", linked: "/a", want: true},
		{name: "linked below", dir: "/a/b", linked: "/a/b/deep", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.put(t, domain.FileRecord{RemotePath: "/a/b/c.txt"})
			h.put(t, domain.FileRecord{RemotePath: "/a/x", IsFolder: true})
			h.put(t, domain.FileRecord{RemotePath: "/a/bb", IsFolder: true})
			h.session.CurrentDir = domain.FileRecord{RemotePath: tt.dir, IsFolder: true}

			ev := finished(domain.EventDownloadFinished, "/a/b/c.txt", true)
			ev.LinkedToPath = tt.linked
			if tt.account != "" {
				ev.AccountName = tt.account
			}
			h.tracker.Handle(h.ctx, ev)

			got := h.view.Count("listing") == 1
			if got != tt.want {
				t.Errorf("Expected refresh=%v for dir %s, got calls %v", tt.want, tt.dir, h.view.Calls())
			}
		})
	}
}

func TestHandle_UploadRefreshesListing(t *testing.T) {
	h := newHarness(t)
	h.put(t, domain.FileRecord{RemotePath: "/a/new.txt"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/a", IsFolder: true}

	h.tracker.Handle(h.ctx, finished(domain.EventUploadFinished, "/a/new.txt", true))

	if got := h.view.Calls(); len(got) != 1 || got[0] != "listing /a 1" {
		t.Errorf("Expected one listing of /a, got %v", got)
	}
}

func TestStartPreview_AudioAfterDownload(t *testing.T) {
	h := newHarness(t)
	song := h.put(t, domain.FileRecord{RemotePath: "/music/song.mp3", MimeType: "audio/mpeg"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/music", IsFolder: true}

	if err := h.tracker.StartPreview(h.ctx, song); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	if n := len(h.engine.Downloads()); n != 1 {
		t.Fatalf("Expected one download request, got %d", n)
	}
	if h.session.WaitingToPreview == nil || h.session.Detail != view.PaneDetails {
		t.Fatalf("Expected pending preview with details pane, got %+v", h.session)
	}

	h.markDown(t, song)
	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/music/song.mp3", true))

	if h.view.Count("preview audio /music/song.mp3") != 1 {
		t.Errorf("Expected audio preview, got %v", h.view.Calls())
	}
	if h.session.WaitingToPreview != nil {
		t.Error("Expected pending preview to be cleared")
	}
	if h.session.Detail != view.PanePreview {
		t.Errorf("Expected preview pane, got %v", h.session.Detail)
	}
	if !h.session.CurrentFile.IsDown() {
		t.Error("Expected current file to be reloaded from the store")
	}
}

func TestStartPreview_FallsBackToOpen(t *testing.T) {
	h := newHarness(t)
	doc := h.put(t, domain.FileRecord{RemotePath: "/doc.pdf", MimeType: "application/pdf"})

	if err := h.tracker.StartPreview(h.ctx, doc); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	h.markDown(t, doc)
	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/doc.pdf", true))

	if h.view.Count("open /doc.pdf") != 1 {
		t.Errorf("Expected default open, got %v", h.view.Calls())
	}
	if h.view.Count("preview") != 0 {
		t.Errorf("Expected no in-pane preview, got %v", h.view.Calls())
	}
	if h.session.Detail != view.PaneDetails {
		t.Errorf("Expected details pane to stay, got %v", h.session.Detail)
	}
}

func TestStartPreview_AlreadyDown(t *testing.T) {
	h := newHarness(t)
	note := h.markDown(t, h.put(t, domain.FileRecord{RemotePath: "/note.txt", MimeType: "text/plain"}))

	if err := h.tracker.StartPreview(h.ctx, note); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	if len(h.engine.Downloads()) != 0 {
		t.Error("Expected no download for a local file")
	}
	if h.view.Count("preview text /note.txt") != 1 {
		t.Errorf("Expected text preview, got %v", h.view.Calls())
	}
}

func TestHandle_DownloadFinishedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	song := h.put(t, domain.FileRecord{RemotePath: "/song.mp3", MimeType: "audio/mpeg"})
	if err := h.tracker.StartPreview(h.ctx, song); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	h.markDown(t, song)
	ev := finished(domain.EventDownloadFinished, "/song.mp3", true)

	h.tracker.Handle(h.ctx, ev)
	once := snapshot(h.session)
	recOnce, _ := h.st.GetByPath(h.ctx, "/song.mp3")

	h.tracker.Handle(h.ctx, ev)
	twice := snapshot(h.session)
	recTwice, _ := h.st.GetByPath(h.ctx, "/song.mp3")

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected same session after replay:\n once: %+v\ntwice: %+v", once, twice)
	}
	if !reflect.DeepEqual(recOnce, recTwice) {
		t.Errorf("Expected same record after replay, got %+v and %+v", recOnce, recTwice)
	}
	if n := h.view.Count("preview"); n != 1 {
		t.Errorf("Expected one preview, got %d", n)
	}
}

func TestHandle_RenamedInUpload(t *testing.T) {
	h := newHarness(t)
	old := h.put(t, domain.FileRecord{RemotePath: "/a/old.txt", MimeType: "application/octet-stream"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/a", IsFolder: true}
	h.tracker.ShowFile(old)
	h.put(t, domain.FileRecord{RemotePath: "/a/new.txt", MimeType: "application/octet-stream", ETag: "e2"})

	ev := finished(domain.EventUploadFinished, "/a/new.txt", true)
	ev.OldRemotePath = "/a/old.txt"
	h.tracker.Handle(h.ctx, ev)

	if h.session.CurrentFile == nil || h.session.CurrentFile.RemotePath != "/a/new.txt" {
		t.Fatalf("Expected pane to point at /a/new.txt, got %+v", h.session.CurrentFile)
	}
	if h.session.CurrentFile.ETag != "e2" {
		t.Errorf("Expected reloaded record, got etag %q", h.session.CurrentFile.ETag)
	}
	var msg string
	for _, c := range h.view.Calls() {
		if strings.HasPrefix(c, "message") {
			msg = c
		}
	}
	if !strings.Contains(msg, "new.txt") {
		t.Errorf("Expected rename message naming new.txt, got %q", msg)
	}

	h.tracker.Handle(h.ctx, ev)
	if n := h.view.Count("message"); n != 1 {
		t.Errorf("Expected one rename message after replay, got %d", n)
	}
	if h.session.CurrentFile.RemotePath != "/a/new.txt" {
		t.Errorf("Expected pane to stay on /a/new.txt, got %s", h.session.CurrentFile.RemotePath)
	}
}

func TestHandle_RenamedInUploadWithoutRecord(t *testing.T) {
	h := newHarness(t)
	old := h.put(t, domain.FileRecord{RemotePath: "/a/old.txt", MimeType: "application/octet-stream", ETag: "e1"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/a", IsFolder: true}
	h.tracker.ShowFile(old)

	ev := finished(domain.EventUploadFinished, "/a/new.txt", true)
	ev.OldRemotePath = "/a/old.txt"
	h.tracker.Handle(h.ctx, ev)

	if h.session.CurrentFile == nil || h.session.CurrentFile.RemotePath != "/a/new.txt" {
		t.Fatalf("Expected pane to follow the rename to /a/new.txt, got %+v", h.session.CurrentFile)
	}
	if h.session.CurrentFile.ETag != "e1" {
		t.Errorf("Expected the shown record to be carried over, got etag %q", h.session.CurrentFile.ETag)
	}
	if h.view.Count("message") != 1 {
		t.Errorf("Expected a rename message, got %v", h.view.Calls())
	}
}

func TestHandle_RenamedInUploadRepointsSend(t *testing.T) {
	h := newHarness(t)
	old := domain.FileRecord{RemotePath: "/a/old.txt"}
	h.session.WaitingToSend = &old
	h.put(t, domain.FileRecord{RemotePath: "/a/new.txt"})

	ev := finished(domain.EventUploadFinished, "/a/new.txt", true)
	ev.OldRemotePath = "/a/old.txt"
	h.tracker.Handle(h.ctx, ev)

	if h.session.WaitingToSend == nil || h.session.WaitingToSend.RemotePath != "/a/new.txt" {
		t.Errorf("Expected pending send re-pointed to /a/new.txt, got %+v", h.session.WaitingToSend)
	}
}

func TestHandle_UploadShowsPreview(t *testing.T) {
	h := newHarness(t)
	img := h.markDown(t, h.put(t, domain.FileRecord{RemotePath: "/pic.jpg", MimeType: "image/jpeg"}))
	h.tracker.ShowFile(img)

	h.tracker.Handle(h.ctx, finished(domain.EventUploadFinished, "/pic.jpg", true))

	if h.view.Count("preview image /pic.jpg") != 1 {
		t.Errorf("Expected image preview, got %v", h.view.Calls())
	}
	if h.session.Detail != view.PanePreview {
		t.Errorf("Expected preview pane, got %v", h.session.Detail)
	}
}

func TestCancelTransfer_ClearsPendingPreview(t *testing.T) {
	h := newHarness(t)
	song := h.put(t, domain.FileRecord{RemotePath: "/song.mp3", MimeType: "audio/mpeg"})
	if err := h.tracker.StartPreview(h.ctx, song); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}

	if err := h.tracker.CancelTransfer(h.ctx, song); err != nil {
		t.Fatalf("CancelTransfer failed: %v", err)
	}
	if len(h.engine.Cancels()) != 1 {
		t.Errorf("Expected cancel to reach the engine, got %d", len(h.engine.Cancels()))
	}
	if h.session.WaitingToPreview != nil {
		t.Error("Expected pending preview to be cleared")
	}

	// 取消後才到的完成事件
	h.markDown(t, song)
	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/song.mp3", true))

	if h.view.Count("preview") != 0 || h.view.Count("open") != 0 {
		t.Errorf("Expected no preview after cancel, got %v", h.view.Calls())
	}
}

func TestCancelTransfer_ClearsPendingSend(t *testing.T) {
	h := newHarness(t)
	f := h.put(t, domain.FileRecord{RemotePath: "/a.txt"})
	if err := h.tracker.StartSend(h.ctx, f); err != nil {
		t.Fatalf("StartSend failed: %v", err)
	}
	if err := h.tracker.CancelTransfer(h.ctx, f); err != nil {
		t.Fatalf("CancelTransfer failed: %v", err)
	}
	if h.session.WaitingToSend != nil {
		t.Error("Expected pending send to be cleared")
	}
}

func TestHandle_DownloadFailedAndRecordGone(t *testing.T) {
	h := newHarness(t)
	f := h.put(t, domain.FileRecord{RemotePath: "/gone.txt"})
	h.tracker.ShowFile(f)
	if err := h.st.Delete(h.ctx, f.ID); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}

	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/gone.txt", false))

	if h.view.Count("close") != 1 {
		t.Errorf("Expected details pane torn down, got %v", h.view.Calls())
	}
	if h.session.Detail != view.PaneNone || h.session.CurrentFile != nil {
		t.Errorf("Expected empty pane, got %v %+v", h.session.Detail, h.session.CurrentFile)
	}
}

func TestHandle_DownloadFailedRecordKept(t *testing.T) {
	h := newHarness(t)
	f := h.put(t, domain.FileRecord{RemotePath: "/kept.txt"})
	h.tracker.ShowFile(f)

	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/kept.txt", false))

	if h.view.Count("transfer /kept.txt download-finished false") != 1 {
		t.Errorf("Expected failed transfer state, got %v", h.view.Calls())
	}
	if h.session.Detail != view.PaneDetails {
		t.Errorf("Expected details pane to stay, got %v", h.session.Detail)
	}
}

func TestHandle_OtherFileShownForgetsPreview(t *testing.T) {
	h := newHarness(t)
	song := h.put(t, domain.FileRecord{RemotePath: "/song.mp3", MimeType: "audio/mpeg"})
	other := h.put(t, domain.FileRecord{RemotePath: "/other.txt"})
	if err := h.tracker.StartPreview(h.ctx, song); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	h.tracker.ShowFile(other)

	h.markDown(t, song)
	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/song.mp3", true))

	if h.session.WaitingToPreview != nil {
		t.Error("Expected pending preview to be forgotten")
	}
	if h.view.Count("preview") != 0 {
		t.Errorf("Expected no preview, got %v", h.view.Calls())
	}
}

func TestStartSend_SendsOnceDown(t *testing.T) {
	h := newHarness(t)
	f := h.put(t, domain.FileRecord{RemotePath: "/a.txt"})
	if err := h.tracker.StartSend(h.ctx, f); err != nil {
		t.Fatalf("StartSend failed: %v", err)
	}

	h.tracker.Handle(h.ctx, finished(domain.EventDownloadFinished, "/a.txt", false))
	if h.view.Count("send") != 0 {
		t.Error("Expected no send before the file is down")
	}

	h.markDown(t, f)
	ev := finished(domain.EventDownloadFinished, "/a.txt", true)
	h.tracker.Handle(h.ctx, ev)
	h.tracker.Handle(h.ctx, ev)

	if n := h.view.Count("send /a.txt"); n != 1 {
		t.Errorf("Expected one send, got %d", n)
	}
	if h.session.WaitingToSend != nil {
		t.Error("Expected pending send to be cleared")
	}
}

func TestRenamed_RepointsCurrentDir(t *testing.T) {
	h := newHarness(t)
	h.put(t, domain.FileRecord{RemotePath: "/New/sub/x.txt"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/Old/sub", IsFolder: true}

	h.tracker.Renamed(h.ctx, "/Old", domain.FileRecord{RemotePath: "/New", IsFolder: true})

	if got := h.session.CurrentDir.RemotePath; got != "/New/sub" {
		t.Errorf("Expected /New/sub, got %s", got)
	}
	if h.view.Count("listing /New/sub 1") != 1 {
		t.Errorf("Expected listing of renamed folder, got %v", h.view.Calls())
	}
}

func TestRemoved_BrowsesUp(t *testing.T) {
	h := newHarness(t)
	f := h.put(t, domain.FileRecord{RemotePath: "/a/b/c.txt"})
	h.session.CurrentDir = domain.FileRecord{RemotePath: "/a/b", IsFolder: true}
	h.tracker.ShowFile(f)

	h.tracker.Removed(h.ctx, domain.FileRecord{RemotePath: "/a/b", IsFolder: true})

	if got := h.session.CurrentDir.RemotePath; got != "/a" {
		t.Errorf("Expected to browse to /a, got %s", got)
	}
	if h.session.CurrentFile != nil || h.session.Detail != view.PaneNone {
		t.Error("Expected details pane to be closed")
	}
}
