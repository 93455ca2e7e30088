package operation

import (
	"context"
	"fmt"

	"github.com/Ning0612/ocsync/internal/core/diff"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
	"github.com/Ning0612/ocsync/internal/transfer"
)

// SynchronizeFile brings one file up to date in whichever direction
// changed, or reports SYNC_CONFLICT when both did.
type SynchronizeFile struct {
	RemotePath string
	// File is used when the store has no record for RemotePath.
	File *domain.FileRecord
	// PushOnly skips the server check; only local edits are uploaded.
	PushOnly bool
}

func (op SynchronizeFile) Kind() domain.OperationKind { return domain.KindSynchronizeFile }

func (op SynchronizeFile) Target() string {
	if op.RemotePath == "" && op.File != nil {
		return domain.CleanPath(op.File.RemotePath)
	}
	return domain.CleanPath(op.RemotePath)
}

// Execute implements Operation.
func (op SynchronizeFile) Execute(ctx context.Context, deps Deps) domain.Result {
	deps = deps.withDefaults()
	p := op.Target()
	log := deps.Log.With("op", "synchronize", "path", p)

	file, err := deps.Store.GetByPath(ctx, p)
	if err != nil {
		return failed(op.Kind(), "synchronize", p, err)
	}
	if file == nil && op.File != nil {
		f := *op.File
		file = &f
	}
	if file == nil {
		return failed(op.Kind(), "synchronize", p, domain.ErrNotFound)
	}
	if file.IsFolder {
		return failed(op.Kind(), "synchronize", p, fmt.Errorf("%w: %s", domain.ErrNotFile, p))
	}
	payload := &domain.FilePayload{File: *file}
	done := func(err error) domain.Result {
		res := remote.ResultFor(op.Kind(), err)
		res.File = payload
		return res
	}

	if !isDown(deps, file) {
		if err := op.download(ctx, deps, payload); err != nil {
			return done(err)
		}
		log.Debug("file not downloaded, requested download")
		return done(nil)
	}

	var server *domain.FileRecord
	if !op.PushOnly {
		props, err := deps.Server.Stat(ctx, p)
		if err != nil {
			return done(err)
		}
		server = &props
	}

	state := diff.LocalState{}
	state.Modified, err = deps.Local.ModTime(file.StoragePath)
	if err != nil {
		return done(remote.Classify("synchronize", p, err))
	}
	if state.Modified > file.LastSyncForData && file.Checksum != "" {
		if sum, err := deps.Local.Checksum(ctx, file.StoragePath); err == nil {
			state.Checksum = sum
		}
	}

	change := deps.Comparer.Compare(*file, server, state)
	log.Debug("compared", "change", change)

	switch change {
	case diff.BothChanged:
		if err := deps.Store.SaveConflict(ctx, file.ID, server.ETag); err != nil {
			return done(remote.Classify("synchronize", p, err))
		}
		payload.File.ETagInConflict = server.ETag
		log.Warn("sync conflict", "local_etag", file.ETag, "server_etag", server.ETag)
		return done(remote.Classify("synchronize", p,
			fmt.Errorf("%w: server moved to %s", domain.ErrSyncConflict, server.ETag)))

	case diff.LocalChanged:
		if err := transfer.UploadUpdate(ctx, deps.Engine, deps.Account, *file, domain.BehaviorMove, true); err != nil {
			return done(err)
		}
		payload.TransferRequested = true

	case diff.ServerChanged:
		if err := op.download(ctx, deps, payload); err != nil {
			return done(err)
		}
	}

	if file.InConflict() {
		if err := deps.Store.SaveConflict(ctx, file.ID, ""); err != nil {
			return done(remote.Classify("synchronize", p, err))
		}
		payload.File.ETagInConflict = ""
	}
	return done(nil)
}

func (op SynchronizeFile) download(ctx context.Context, deps Deps, payload *domain.FilePayload) error {
	payload.TransferRequested = true
	if deps.Engine.IsDownloading(deps.Account, payload.File) {
		return nil
	}
	return deps.Engine.RequestDownload(ctx, deps.Account, payload.File)
}
