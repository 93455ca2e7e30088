package operation

import (
	"context"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
)

// RemoveFile deletes a file or folder on the server and locally. With
// OnlyLocal just the local copy goes and the record stays.
type RemoveFile struct {
	RemotePath string
	OnlyLocal  bool
}

func (op RemoveFile) Kind() domain.OperationKind { return domain.KindRemoveFile }

func (op RemoveFile) Target() string { return domain.CleanPath(op.RemotePath) }

// Execute implements Operation.
func (op RemoveFile) Execute(ctx context.Context, deps Deps) domain.Result {
	deps = deps.withDefaults()
	p := op.Target()
	log := deps.Log.With("op", "remove", "path", p, "only_local", op.OnlyLocal)

	file, err := deps.Store.GetByPath(ctx, p)
	if err != nil {
		return failed(op.Kind(), "remove", p, err)
	}
	if file == nil {
		return failed(op.Kind(), "remove", p, domain.ErrNotFound)
	}
	if p == domain.RootPath {
		return failed(op.Kind(), "remove", p, domain.ErrPermissionDenied)
	}
	done := func(err error) domain.Result {
		res := remote.ResultFor(op.Kind(), err)
		removed := *file
		res.Removed = &removed
		return res
	}

	if err := deps.Engine.Cancel(ctx, deps.Account, *file); err != nil {
		log.Warn("failed to cancel transfers", "error", err)
	}

	if op.OnlyLocal {
		if err := forgetLocal(ctx, deps, *file); err != nil {
			return done(remote.Classify("remove", p, err))
		}
		log.Info("local copy removed")
		return done(nil)
	}

	if err := deps.Server.Remove(ctx, p); err != nil && remote.CodeFor(err) != domain.CodeFileNotFound {
		return done(err)
	}
	if err := deps.Store.Delete(ctx, file.ID); err != nil {
		return done(remote.Classify("remove", p, err))
	}
	if file.IsFolder {
		err = deps.Local.RemoveTree(p)
	} else {
		err = deps.Local.Remove(file.StoragePath)
	}
	if err != nil {
		log.Warn("failed to remove local copy", "error", err)
	}
	log.Info("removed")
	return done(nil)
}

// forgetLocal drops the local copy of f, and of everything below a folder,
// and marks the records as not downloaded.
func forgetLocal(ctx context.Context, deps Deps, f domain.FileRecord) error {
	if f.IsFolder {
		children, err := deps.Store.GetFolderContents(ctx, f)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := forgetLocal(ctx, deps, c); err != nil {
				return err
			}
		}
		if f.RemotePath == domain.RootPath {
			return nil
		}
		return deps.Local.RemoveTree(f.RemotePath)
	}

	if err := deps.Local.Remove(f.StoragePath); err != nil {
		return err
	}
	if f.StoragePath == "" && f.LastSyncForData == 0 {
		return nil
	}
	f.StoragePath = ""
	f.LastSyncForData = 0
	f.LocalModified = 0
	return deps.Store.Upsert(ctx, &f)
}
