package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
)

// RenameFile renames a file or folder inside its parent folder, on the
// server, in the store and on disk.
type RenameFile struct {
	RemotePath string
	NewName    string
}

func (op RenameFile) Kind() domain.OperationKind { return domain.KindRenameFile }

func (op RenameFile) Target() string { return domain.CleanPath(op.RemotePath) }

// Execute implements Operation.
func (op RenameFile) Execute(ctx context.Context, deps Deps) domain.Result {
	deps = deps.withDefaults()
	p := op.Target()
	log := deps.Log.With("op", "rename", "path", p)

	name := strings.TrimSpace(op.NewName)
	if err := validName(name); err != nil {
		return failed(op.Kind(), "rename", p, err)
	}
	file, err := deps.Store.GetByPath(ctx, p)
	if err != nil {
		return failed(op.Kind(), "rename", p, err)
	}
	if file == nil {
		return failed(op.Kind(), "rename", p, domain.ErrNotFound)
	}
	if p == domain.RootPath {
		return failed(op.Kind(), "rename", p, domain.ErrPermissionDenied)
	}

	newPath := joinPath(file.ParentPath(), name)
	payload := &domain.RenamePayload{File: *file, OldPath: p, NewPath: newPath}
	done := func(err error) domain.Result {
		res := remote.ResultFor(op.Kind(), err)
		res.Renamed = payload
		return res
	}
	if newPath == p {
		return done(nil)
	}

	exists, err := remote.Exists(ctx, deps.Server, newPath)
	if err != nil {
		return done(err)
	}
	if exists {
		return done(remote.Classify("rename", newPath, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, newPath)))
	}
	if err := deps.Server.Move(ctx, p, newPath, false); err != nil {
		return done(err)
	}

	var storageFrom, storageTo string
	dst, moved, localErr := deps.Local.Rename(p, newPath)
	if localErr != nil {
		log.Warn("local copy not moved", "error", localErr)
	} else if moved {
		storageFrom, _ = deps.Local.Path(p)
		storageTo = dst
	}

	if err := deps.Store.RenameTree(ctx, p, newPath, storageFrom, storageTo); err != nil {
		return done(remote.Classify("rename", p, err))
	}
	if renamed, err := deps.Store.GetByPath(ctx, newPath); err == nil && renamed != nil {
		payload.File = *renamed
	}
	log.Info("renamed", "to", newPath)

	if localErr != nil {
		res := done(nil)
		res.Code = domain.CodeLocalStorageNotMoved
		res.Err = fmt.Errorf("move local copy of %s: %w", p, localErr)
		return res
	}
	return done(nil)
}
