package tracker

import (
	"context"
	"fmt"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/view"
)

// Browse makes dir the browsed folder and shows its stored listing.
func (t *Tracker) Browse(ctx context.Context, dir domain.FileRecord) {
	dir.RemotePath = domain.CleanPath(dir.RemotePath)
	dir.IsFolder = true
	t.session.CurrentDir = dir
	t.RefreshListing(ctx)
}

// ShowFile opens the details pane on file.
func (t *Tracker) ShowFile(file domain.FileRecord) {
	s := t.session
	s.CurrentFile = &file
	s.Detail = view.PaneDetails
	t.view.ShowDetails(file)
}

// CloseDetails empties the second pane.
func (t *Tracker) CloseDetails() {
	t.tearDown()
}

// StartPreview shows file, downloading it first when needed.
func (t *Tracker) StartPreview(ctx context.Context, file domain.FileRecord) error {
	if file.IsFolder {
		return fmt.Errorf("%w: %s", domain.ErrNotFile, file.RemotePath)
	}
	t.ShowFile(file)
	if file.IsDown() {
		if kind := view.DownloadPreview(file.MimeType); kind != view.PreviewOpen {
			t.session.Detail = view.PanePreview
			t.view.ShowPreview(kind, file)
		} else {
			t.view.OpenFile(file)
		}
		return nil
	}

	waiting := file
	t.session.WaitingToPreview = &waiting
	return t.requestDownload(ctx, file)
}

// StartSend hands file to the view, downloading it first when needed.
func (t *Tracker) StartSend(ctx context.Context, file domain.FileRecord) error {
	if file.IsFolder {
		return fmt.Errorf("%w: %s", domain.ErrNotFile, file.RemotePath)
	}
	if file.IsDown() {
		t.view.SendFile(file)
		return nil
	}
	waiting := file
	t.session.WaitingToSend = &waiting
	return t.requestDownload(ctx, file)
}

func (t *Tracker) requestDownload(ctx context.Context, file domain.FileRecord) error {
	if t.engine.IsDownloading(t.session.Account, file) {
		return nil
	}
	return t.engine.RequestDownload(ctx, t.session.Account, file)
}

// Renamed re-points every reference below oldPath to the renamed record.
func (t *Tracker) Renamed(ctx context.Context, oldPath string, file domain.FileRecord) {
	s := t.session
	oldPath = domain.CleanPath(oldPath)
	newPath := domain.CleanPath(file.RemotePath)
	move := func(p string) string { return newPath + p[len(oldPath):] }

	if domain.IsDescendant(s.CurrentDir.RemotePath, oldPath) && oldPath != domain.RootPath {
		s.CurrentDir.RemotePath = move(s.CurrentDir.RemotePath)
	}
	if s.CurrentFile != nil && domain.IsDescendant(s.CurrentFile.RemotePath, oldPath) {
		if s.CurrentFile.RemotePath == oldPath {
			s.CurrentFile = &file
		} else if rec, err := t.store.GetByPath(ctx, move(s.CurrentFile.RemotePath)); err == nil && rec != nil {
			s.CurrentFile = rec
		}
		if s.Detail != view.PaneNone {
			t.view.ShowDetails(*s.CurrentFile)
		}
	}
	t.repointWaiting(ctx, oldPath, newPath)
	t.RefreshListing(ctx)
}

// Removed drops every reference to file and what was below it.
func (t *Tracker) Removed(ctx context.Context, file domain.FileRecord) {
	s := t.session
	p := domain.CleanPath(file.RemotePath)
	if s.WaitingToPreview != nil && domain.IsDescendant(s.WaitingToPreview.RemotePath, p) {
		s.WaitingToPreview = nil
	}
	if s.WaitingToSend != nil && domain.IsDescendant(s.WaitingToSend.RemotePath, p) {
		s.WaitingToSend = nil
	}
	if s.CurrentFile != nil && domain.IsDescendant(s.CurrentFile.RemotePath, p) {
		if s.Detail != view.PaneNone {
			t.tearDown()
		} else {
			s.CurrentFile = nil
		}
	}
	if p != domain.RootPath && domain.IsDescendant(s.CurrentDir.RemotePath, p) {
		t.Browse(ctx, domain.FileRecord{RemotePath: domain.ParentPath(p)})
		return
	}
	t.RefreshListing(ctx)
}
