package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/Ning0612/ocsync/internal/core/conflict"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
	"github.com/Ning0612/ocsync/internal/state"
)

// handleResult is the only place operation results reach the screen.
func (s *Session) handleResult(ctx context.Context, res domain.Result) {
	s.record(ctx, res)

	if s.coord.Accept(res) {
		s.dispatch(ctx, res)
	}

	if ch, ok := s.waiters[res.OperationID]; ok {
		delete(s.waiters, res.OperationID)
		ch <- res
	}
}

func (s *Session) record(ctx context.Context, res domain.Result) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Save(ctx, state.RecordFromResult(s.account, res.Target, res)); err != nil {
		s.log.Warn("failed to save history", "op_id", res.OperationID, "error", err)
	}
}

func (s *Session) dispatch(ctx context.Context, res domain.Result) {
	log := s.log.With("op_id", res.OperationID, "kind", res.Kind.String(), "target", res.Target)

	switch res.Code {
	case domain.CodeOK:
		s.succeeded(ctx, res)

	case domain.CodeCancelled:
		log.Debug("operation cancelled")

	case domain.CodeSyncConflict:
		if err := s.resolver.Open(s.account, res); err != nil {
			log.Warn("conflict not opened", "error", err)
			s.opts.View.Message(fmt.Sprintf("%s is in conflict; resolve it after the current one", res.Target))
			return
		}
		file, _ := s.resolver.File()
		s.opts.View.ShowConflict(file)

	case domain.CodeUnauthorized:
		s.opts.View.AskCredentials(s.account)

	case domain.CodeSSLRecoverablePeerUnverified:
		cert := certificateOf(res.Err)
		if cert == nil {
			s.opts.View.Message(describe(res))
			return
		}
		s.pendingCert = cert
		s.opts.View.AskTrust(cert)

	case domain.CodeFileNotFound:
		// 根目錄不見了沒地方退，只提示
		if res.Kind == domain.KindRefreshFolder && res.Target != domain.RootPath &&
			domain.IsDescendant(s.state.CurrentDir.RemotePath, res.Target) {
			s.folderGone(ctx, res.Target)
			return
		}
		s.opts.View.Message(describe(res))

	case domain.CodeSpecificServiceUnavailable:
		if res.HTTPCode == 503 && res.HTTPPhrase != "" {
			s.opts.View.Message(res.HTTPPhrase)
			return
		}
		s.opts.View.Message("The server is not available for this account; check that the account still exists")

	default:
		s.opts.View.Message(describe(res))
	}
}

// folderGone moves the screen to the root after the browsed folder, or
// one above it, disappeared from the server.
func (s *Session) folderGone(ctx context.Context, folder string) {
	s.log.Info("browsed folder is gone", "folder", folder, "current", s.state.CurrentDir.RemotePath)
	s.tracker.CloseDetails()
	s.tracker.Browse(ctx, domain.FileRecord{RemotePath: domain.RootPath})
	s.opts.View.Message(fmt.Sprintf("%s no longer exists on the server", folder))
	s.coord.RequestSync(s.ctx, s.state.CurrentDir, false)
}

func (s *Session) succeeded(ctx context.Context, res domain.Result) {
	switch res.Kind {
	case domain.KindRefreshFolder:
		if res.Folder == nil {
			return
		}
		if res.Folder.Folder.RemotePath == s.state.CurrentDir.RemotePath {
			s.tracker.RefreshListing(ctx)
		}
		if n := res.Folder.Conflicts; n > 0 {
			s.opts.View.Message(fmt.Sprintf("%d file(s) in %s are in conflict", n, res.Folder.Folder.RemotePath))
		}
		if n := res.Folder.Failures; n > 0 {
			s.opts.View.Message(fmt.Sprintf("%d file(s) in %s could not be synchronized", n, res.Folder.Folder.RemotePath))
		}

	case domain.KindSynchronizeFile:
		s.tracker.RefreshListing(ctx)
		if res.File == nil {
			return
		}
		file := res.File.File
		if s.state.CurrentFile != nil && s.state.CurrentFile.RemotePath == file.RemotePath {
			s.state.CurrentFile = &file
			s.opts.View.ShowDetails(file)
		}
		// 背景同步不打擾使用者
		if _, waited := s.waiters[res.OperationID]; waited && !res.File.TransferRequested {
			s.opts.View.Message(fmt.Sprintf("%s is up to date", file.RemotePath))
		}

	case domain.KindRenameFile:
		if res.Renamed == nil {
			return
		}
		s.tracker.Renamed(ctx, res.Renamed.OldPath, res.Renamed.File)

	case domain.KindRemoveFile:
		if res.Removed == nil {
			return
		}
		p := res.Removed.RemotePath
		if rec, err := s.opts.Store.GetByPath(ctx, p); err == nil && rec != nil {
			// 只刪了本機副本
			s.tracker.RefreshListing(ctx)
			if s.state.CurrentFile != nil && s.state.CurrentFile.RemotePath == p {
				s.state.CurrentFile = rec
				s.opts.View.ShowDetails(*rec)
			}
			s.opts.View.Message(fmt.Sprintf("Local copy of %s removed", p))
			return
		}
		before := s.state.CurrentDir.RemotePath
		s.tracker.Removed(ctx, *res.Removed)
		if s.state.CurrentDir.RemotePath != before {
			s.coord.RequestSync(s.ctx, s.state.CurrentDir, false)
		}
		s.opts.View.Message(fmt.Sprintf("%s removed", p))

	case domain.KindCreateFolder:
		s.tracker.RefreshListing(ctx)
	}
}

func certificateOf(err error) *x509.Certificate {
	var untrusted *remote.UntrustedCertError
	if errors.As(err, &untrusted) && untrusted.Cert != nil {
		return untrusted.Cert
	}
	var e *remote.Error
	if errors.As(err, &e) && e.Cert != nil {
		return e.Cert
	}
	return nil
}

func verb(kind domain.OperationKind) string {
	switch kind {
	case domain.KindRefreshFolder:
		return "refresh"
	case domain.KindSynchronizeFile:
		return "synchronize"
	case domain.KindRenameFile:
		return "rename"
	case domain.KindRemoveFile:
		return "remove"
	case domain.KindCreateFolder:
		return "create"
	}
	return "process"
}

// describe turns a failed result into a line for the user.
func describe(res domain.Result) string {
	switch res.Code {
	case domain.CodeForbidden:
		return fmt.Sprintf("Not allowed to %s %s", verb(res.Kind), res.Target)
	case domain.CodeInvalidOverwrite:
		return fmt.Sprintf("Could not %s %s: the name is already taken", verb(res.Kind), res.Target)
	case domain.CodeInvalidCharacterInName:
		return fmt.Sprintf("Could not %s %s: the name has characters the server does not accept", verb(res.Kind), res.Target)
	case domain.CodeFileNotFound:
		return fmt.Sprintf("%s no longer exists on the server", res.Target)
	case domain.CodeHostNotAvailable, domain.CodeServiceUnavailable:
		return "The server could not be reached; try again later"
	case domain.CodeLocalStorageNotMoved:
		return fmt.Sprintf("The local copy of %s could not be moved", res.Target)
	case domain.CodeSSLRecoverablePeerUnverified:
		return "The server certificate could not be verified"
	}
	if res.Err != nil {
		return fmt.Sprintf("Could not %s %s: %v", verb(res.Kind), res.Target, res.Err)
	}
	return fmt.Sprintf("Could not %s %s (%s)", verb(res.Kind), res.Target, res.Code)
}

func decisionMessage(st conflict.State, file domain.FileRecord) string {
	switch st {
	case conflict.ApplyLocal:
		return fmt.Sprintf("Uploading your copy of %s over the server version", file.RemotePath)
	case conflict.ApplyServer:
		return fmt.Sprintf("Downloading the server version of %s", file.RemotePath)
	case conflict.KeepBoth:
		return fmt.Sprintf("Uploading your copy of %s under a new name", file.RemotePath)
	}
	return fmt.Sprintf("Conflict on %s left unresolved", file.RemotePath)
}
