package tracker

import (
	"context"
	"fmt"
	"path"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/view"
)

// Tracker applies transfer events and navigation to a Session. Handling
// the same event twice leaves the session as after the first time.
type Tracker struct {
	store   domain.FileStore
	engine  domain.TransferEngine
	view    view.View
	session *Session
	log     logger.Logger
}

// New creates a Tracker for session.
func New(store domain.FileStore, engine domain.TransferEngine, v view.View, session *Session) (*Tracker, error) {
	if store == nil || engine == nil || v == nil || session == nil {
		return nil, fmt.Errorf("tracker needs a store, an engine, a view and a session")
	}
	return &Tracker{
		store:   store,
		engine:  engine,
		view:    v,
		session: session,
		log:     logger.With("component", "tracker", "account", session.Account),
	}, nil
}

// Session returns the tracked session.
func (t *Tracker) Session() *Session {
	return t.session
}

// Handle applies one transfer event.
func (t *Tracker) Handle(ctx context.Context, ev domain.TransferEvent) {
	if ev.AccountName != t.session.Account {
		return
	}
	ev.RemotePath = domain.CleanPath(ev.RemotePath)
	if ev.OldRemotePath != "" {
		ev.OldRemotePath = domain.CleanPath(ev.OldRemotePath)
	}
	if ev.LinkedToPath != "" {
		ev.LinkedToPath = domain.CleanPath(ev.LinkedToPath)
	}
	t.log.Debug("transfer event", "type", ev.Type, "path", ev.RemotePath, "success", ev.Success)

	switch ev.Type {
	case domain.EventUploadStarted:
		if t.below(ev) && t.linked(ev) {
			t.RefreshListing(ctx)
		}
	case domain.EventUploadFinished:
		t.uploadFinished(ctx, ev)
	case domain.EventDownloadAdded, domain.EventDownloadFinished:
		t.downloadEvent(ctx, ev)
	default:
		t.log.Warn("unknown transfer event", "type", ev.Type)
	}
}

func (t *Tracker) below(ev domain.TransferEvent) bool {
	return domain.IsDescendant(ev.RemotePath, t.session.CurrentDir.RemotePath)
}

// linked reports whether a transfer started from a folder was started
// from the browsed folder or one above it.
func (t *Tracker) linked(ev domain.TransferEvent) bool {
	return ev.LinkedToPath == "" || domain.IsDescendant(t.session.CurrentDir.RemotePath, ev.LinkedToPath)
}

// RefreshListing re-reads the browsed folder from the store.
func (t *Tracker) RefreshListing(ctx context.Context) {
	dir := t.session.CurrentDir
	if rec, err := t.store.GetByPath(ctx, dir.RemotePath); err == nil && rec != nil {
		dir = *rec
		t.session.CurrentDir = dir
	}
	children, err := t.store.GetFolderContents(ctx, dir)
	if err != nil {
		t.log.Warn("failed to read folder", "path", dir.RemotePath, "error", err)
		return
	}
	t.view.ShowListing(dir, children)
}

func (t *Tracker) uploadFinished(ctx context.Context, ev domain.TransferEvent) {
	s := t.session
	if t.below(ev) && t.linked(ev) {
		t.RefreshListing(ctx)
	}

	renamed := ev.OldRemotePath != "" && ev.OldRemotePath != ev.RemotePath
	if renamed {
		t.repointWaiting(ctx, ev.OldRemotePath, ev.RemotePath)
	}
	renamedShown := renamed && s.showing(ev.OldRemotePath)
	if !renamedShown && !s.showing(ev.RemotePath) {
		return
	}

	if ev.Success {
		rec, err := t.store.GetByPath(ctx, ev.RemotePath)
		if err != nil {
			t.log.Warn("failed to reload uploaded file", "path", ev.RemotePath, "error", err)
		}
		switch {
		case rec != nil:
			s.CurrentFile = rec
		case renamedShown:
			moved := *s.CurrentFile
			moved.RemotePath = ev.RemotePath
			s.CurrentFile = &moved
		}
	}
	t.refreshUploadPane(ctx, ev)

	if renamedShown {
		t.view.Message(fmt.Sprintf("%s was renamed in upload to %s", path.Base(ev.OldRemotePath), path.Base(ev.RemotePath)))
	}
}

func (t *Tracker) refreshUploadPane(ctx context.Context, ev domain.TransferEvent) {
	s := t.session
	if s.Detail == view.PaneNone || s.CurrentFile == nil {
		return
	}
	file := *s.CurrentFile
	if !ev.Success {
		if t.gone(ctx, file.RemotePath) {
			t.tearDown()
			return
		}
		t.view.ShowTransferState(file, ev.Type, false)
		return
	}
	if s.Detail == view.PaneDetails && file.IsDown() {
		if kind := view.UploadPreview(file.MimeType); kind != view.PreviewNone {
			s.Detail = view.PanePreview
			t.view.ShowPreview(kind, file)
			return
		}
	}
	t.view.ShowTransferState(file, ev.Type, true)
}

func (t *Tracker) downloadEvent(ctx context.Context, ev domain.TransferEvent) {
	if t.below(ev) {
		if t.linked(ev) {
			t.RefreshListing(ctx)
		}
		t.refreshDownloadPane(ctx, ev)
	}
	if ev.Type == domain.EventDownloadFinished {
		t.sendIfWaiting(ctx)
	}
}

func (t *Tracker) refreshDownloadPane(ctx context.Context, ev domain.TransferEvent) {
	s := t.session
	if s.Detail == view.PaneNone {
		return
	}

	replaced := false
	if s.Detail == view.PaneDetails {
		switch {
		case s.CurrentFile != nil && s.CurrentFile.RemotePath != ev.RemotePath:
			// 使用者已經在看別的檔案，不再自動預覽
			if samePath(s.WaitingToPreview, ev.RemotePath) {
				s.WaitingToPreview = nil
			}
		case ev.Type == domain.EventDownloadFinished && samePath(s.WaitingToPreview, ev.RemotePath):
			if ev.Success {
				replaced = t.previewDownloaded(ctx, *s.WaitingToPreview)
			}
			s.WaitingToPreview = nil
		}
	}
	if replaced || !s.showing(ev.RemotePath) {
		return
	}

	if ev.Type == domain.EventDownloadFinished {
		rec, err := t.store.GetByPath(ctx, ev.RemotePath)
		switch {
		case err != nil:
			t.log.Warn("failed to reload downloaded file", "path", ev.RemotePath, "error", err)
		case rec == nil && !ev.Success:
			// 下載途中被伺服器刪掉
			t.tearDown()
			return
		case rec != nil:
			s.CurrentFile = rec
		}
	}
	t.view.ShowTransferState(*s.CurrentFile, ev.Type, ev.Success)
}

// previewDownloaded shows a file whose pending preview just came down.
// It reports whether the second pane now shows the preview.
func (t *Tracker) previewDownloaded(ctx context.Context, waiting domain.FileRecord) bool {
	var (
		rec *domain.FileRecord
		err error
	)
	if waiting.ID != 0 {
		rec, err = t.store.GetByID(ctx, waiting.ID)
	} else {
		rec, err = t.store.GetByPath(ctx, waiting.RemotePath)
	}
	if err != nil || rec == nil {
		t.log.Warn("downloaded file is gone", "path", waiting.RemotePath, "error", err)
		return false
	}

	kind := view.DownloadPreview(rec.MimeType)
	if kind == view.PreviewOpen {
		t.view.OpenFile(*rec)
		return false
	}
	s := t.session
	s.CurrentFile = rec
	s.Detail = view.PanePreview
	t.view.ShowPreview(kind, *rec)
	return true
}

func (t *Tracker) sendIfWaiting(ctx context.Context) {
	s := t.session
	if s.WaitingToSend == nil {
		return
	}
	rec, err := t.store.GetByPath(ctx, s.WaitingToSend.RemotePath)
	if err != nil {
		t.log.Warn("failed to reload file to send", "path", s.WaitingToSend.RemotePath, "error", err)
		return
	}
	if rec == nil {
		t.log.Info("file to send is gone", "path", s.WaitingToSend.RemotePath)
		s.WaitingToSend = nil
		return
	}
	s.WaitingToSend = rec
	if rec.IsDown() {
		s.WaitingToSend = nil
		t.view.SendFile(*rec)
	}
}

// repointWaiting moves pending references from an old path to its new one.
func (t *Tracker) repointWaiting(ctx context.Context, oldPath, newPath string) {
	s := t.session
	repoint := func(f *domain.FileRecord) *domain.FileRecord {
		if !samePath(f, oldPath) {
			return f
		}
		if rec, err := t.store.GetByPath(ctx, newPath); err == nil && rec != nil {
			return rec
		}
		moved := *f
		moved.RemotePath = newPath
		return &moved
	}
	s.WaitingToPreview = repoint(s.WaitingToPreview)
	s.WaitingToSend = repoint(s.WaitingToSend)
}

func (t *Tracker) gone(ctx context.Context, p string) bool {
	rec, err := t.store.GetByPath(ctx, p)
	return err == nil && rec == nil
}

func (t *Tracker) tearDown() {
	s := t.session
	s.CurrentFile = nil
	s.Detail = view.PaneNone
	t.view.CloseDetails()
}

// CancelTransfer forwards the cancel to the engine and forgets any pending
// preview or send of file.
func (t *Tracker) CancelTransfer(ctx context.Context, file domain.FileRecord) error {
	s := t.session
	file.RemotePath = domain.CleanPath(file.RemotePath)
	err := t.engine.Cancel(ctx, s.Account, file)
	if err != nil {
		t.log.Warn("failed to cancel transfer", "path", file.RemotePath, "error", err)
	}

	if samePath(s.WaitingToPreview, file.RemotePath) {
		s.WaitingToPreview = nil
	}
	if samePath(s.WaitingToSend, file.RemotePath) {
		s.WaitingToSend = nil
	}
	t.RefreshListing(ctx)

	if s.Detail != view.PaneNone && s.showing(file.RemotePath) {
		if t.gone(ctx, file.RemotePath) {
			t.tearDown()
		} else {
			t.view.ShowTransferState(*s.CurrentFile, domain.EventDownloadFinished, false)
		}
	}
	return err
}
