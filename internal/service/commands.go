package service

import (
	"context"
	"fmt"

	"github.com/Ning0612/ocsync/internal/core/conflict"
	"github.com/Ning0612/ocsync/internal/core/operation"
	"github.com/Ning0612/ocsync/internal/domain"
)

// Browse shows the folder at p and asks for its refresh. A folder the
// store does not know yet is browsed as a placeholder until the refresh
// brings it in.
func (s *Session) Browse(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		p := domain.CleanPath(p)
		rec, err := s.opts.Store.GetByPath(ctx, p)
		if err != nil {
			return err
		}
		dir := domain.FileRecord{RemotePath: p, IsFolder: true}
		if rec != nil {
			if !rec.IsFolder {
				return fmt.Errorf("%w: %s", domain.ErrNotDirectory, p)
			}
			dir = *rec
		}
		s.tracker.Browse(ctx, dir)
		s.coord.RequestSync(s.ctx, dir, false)
		return nil
	})
}

// Refresh asks for a refresh of the browsed folder.
func (s *Session) Refresh(ctx context.Context, ignoreETag bool) error {
	return s.call(ctx, func(context.Context) error {
		s.coord.RequestSync(s.ctx, s.state.CurrentDir, ignoreETag)
		return nil
	})
}

// RequestRefresh asks for a refresh of folder, or of the browsed folder
// when empty. Unlike Browse it never changes what is on screen.
func (s *Session) RequestRefresh(ctx context.Context, folder string) error {
	return s.call(ctx, func(ctx context.Context) error {
		if folder == "" {
			s.coord.RequestSync(s.ctx, s.state.CurrentDir, false)
			return nil
		}
		dir := domain.FileRecord{RemotePath: domain.CleanPath(folder), IsFolder: true}
		rec, err := s.opts.Store.GetByPath(ctx, dir.RemotePath)
		if err != nil {
			return err
		}
		if rec != nil {
			dir = *rec
		}
		s.coord.RequestSync(s.ctx, dir, false)
		return nil
	})
}

// ShowFile opens the details of the file at p.
func (s *Session) ShowFile(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		file, err := s.lookup(ctx, p)
		if err != nil {
			return err
		}
		s.tracker.ShowFile(file)
		return nil
	})
}

// CloseDetails empties the details pane.
func (s *Session) CloseDetails(ctx context.Context) error {
	return s.call(ctx, func(context.Context) error {
		s.tracker.CloseDetails()
		return nil
	})
}

// Preview shows the file at p, downloading it first when needed.
func (s *Session) Preview(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		file, err := s.lookup(ctx, p)
		if err != nil {
			return err
		}
		return s.tracker.StartPreview(ctx, file)
	})
}

// Send hands the file at p to the view once it is down.
func (s *Session) Send(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		file, err := s.lookup(ctx, p)
		if err != nil {
			return err
		}
		return s.tracker.StartSend(ctx, file)
	})
}

// CancelTransfer stops every transfer of the file at p.
func (s *Session) CancelTransfer(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		file, err := s.lookup(ctx, p)
		if err != nil {
			return err
		}
		return s.tracker.CancelTransfer(ctx, file)
	})
}

// SyncFile synchronizes the file at p and waits for the result.
func (s *Session) SyncFile(ctx context.Context, p string) (domain.Result, error) {
	return s.submit(ctx, operation.SynchronizeFile{RemotePath: p})
}

// SyncInBackground synchronizes the file at p without the screen waiting
// for it. With pushOnly the server is not asked for changes.
func (s *Session) SyncInBackground(ctx context.Context, p string, pushOnly bool) error {
	return s.call(ctx, func(context.Context) error {
		op := operation.SynchronizeFile{RemotePath: p, PushOnly: pushOnly}
		if s.runner.Running(op.Kind(), op.Target()) {
			return nil
		}
		s.runner.Start(s.ctx, op)
		return nil
	})
}

// Rename gives the file at p a new name and waits for the result.
func (s *Session) Rename(ctx context.Context, p, newName string) (domain.Result, error) {
	return s.submit(ctx, operation.RenameFile{RemotePath: p, NewName: newName})
}

// Remove deletes the file at p, or only its local copy.
func (s *Session) Remove(ctx context.Context, p string, onlyLocal bool) (domain.Result, error) {
	return s.submit(ctx, operation.RemoveFile{RemotePath: p, OnlyLocal: onlyLocal})
}

// Mkdir creates the folder at p.
func (s *Session) Mkdir(ctx context.Context, p string, parents bool) (domain.Result, error) {
	return s.submit(ctx, operation.CreateFolder{RemotePath: p, CreateParents: parents})
}

// Abandon stops waiting for the last user operation. Its result will
// still reach its caller but not the screen.
func (s *Session) Abandon(ctx context.Context) error {
	return s.call(ctx, func(context.Context) error {
		s.coord.Abandon()
		return nil
	})
}

// Pin keeps the file or folder at p in sync, or stops doing so.
func (s *Session) Pin(ctx context.Context, p string, keep bool) error {
	return s.call(ctx, func(ctx context.Context) error {
		if err := s.opts.Store.SetKeptInSync(ctx, p, keep); err != nil {
			return err
		}
		s.tracker.RefreshListing(ctx)
		return nil
	})
}

// OpenConflict opens resolution for a stored file carrying a conflict
// marker.
func (s *Session) OpenConflict(ctx context.Context, p string) error {
	return s.call(ctx, func(ctx context.Context) error {
		file, err := s.lookup(ctx, p)
		if err != nil {
			return err
		}
		if err := s.resolver.OpenMarked(s.account, file); err != nil {
			return err
		}
		s.opts.View.ShowConflict(file)
		return nil
	})
}

// Conflict returns the file awaiting a decision, if any.
func (s *Session) Conflict(ctx context.Context) (domain.FileRecord, bool, error) {
	var (
		file domain.FileRecord
		open bool
	)
	err := s.call(ctx, func(context.Context) error {
		file, open = s.resolver.File()
		return nil
	})
	return file, open, err
}

// Decide answers the open conflict.
func (s *Session) Decide(ctx context.Context, d domain.Decision) (conflict.State, error) {
	var st conflict.State
	err := s.call(ctx, func(ctx context.Context) error {
		file, _ := s.resolver.File()
		var err error
		st, err = s.resolver.Decide(ctx, d)
		if err != nil {
			return err
		}
		s.opts.View.Message(decisionMessage(st, file))
		return nil
	})
	return st, err
}

// AcceptCertificate answers the pending trust question. An accepted
// certificate is stored and the browsed folder refreshed again.
func (s *Session) AcceptCertificate(ctx context.Context, accept bool) error {
	return s.call(ctx, func(context.Context) error {
		cert := s.pendingCert
		if cert == nil {
			return domain.ErrNoPendingCertificate
		}
		s.pendingCert = nil
		if !accept {
			s.log.Info("server certificate rejected")
			return nil
		}
		if s.opts.Trust == nil {
			return fmt.Errorf("no trust store configured")
		}
		if err := s.opts.Trust.Accept(cert); err != nil {
			return err
		}
		s.coord.RequestSync(s.ctx, s.state.CurrentDir, false)
		return nil
	})
}
