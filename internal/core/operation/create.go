package operation

import (
	"context"
	"fmt"
	"path"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
)

// CreateFolder makes a new folder on the server and records it.
type CreateFolder struct {
	RemotePath    string
	CreateParents bool
}

func (op CreateFolder) Kind() domain.OperationKind { return domain.KindCreateFolder }

func (op CreateFolder) Target() string { return domain.CleanPath(op.RemotePath) }

// Execute implements Operation.
func (op CreateFolder) Execute(ctx context.Context, deps Deps) domain.Result {
	deps = deps.withDefaults()
	p := op.Target()

	if p == domain.RootPath {
		return failed(op.Kind(), "mkdir", p, domain.ErrAlreadyExists)
	}
	if err := validName(path.Base(p)); err != nil {
		return failed(op.Kind(), "mkdir", p, err)
	}

	exists, err := remote.Exists(ctx, deps.Server, p)
	if err != nil {
		return remote.ResultFor(op.Kind(), err)
	}
	if exists {
		return failed(op.Kind(), "mkdir", p, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, p))
	}
	parentPath := domain.ParentPath(p)
	if !op.CreateParents {
		ok, err := remote.Exists(ctx, deps.Server, parentPath)
		if err != nil {
			return remote.ResultFor(op.Kind(), err)
		}
		if !ok {
			return failed(op.Kind(), "mkdir", parentPath, domain.ErrNotFound)
		}
	}

	if err := deps.Server.MkdirAll(ctx, p); err != nil {
		return remote.ResultFor(op.Kind(), err)
	}
	props, err := deps.Server.Stat(ctx, p)
	if err != nil {
		return remote.ResultFor(op.Kind(), err)
	}

	parent, err := ensureFolder(ctx, deps, parentPath)
	if err != nil {
		return failed(op.Kind(), "mkdir", p, err)
	}
	created := props
	created.ParentID = parent.ID
	created.IsFolder = true
	created.LastSyncForProperties = deps.Now().UnixMilli()
	if err := deps.Store.Upsert(ctx, &created); err != nil {
		return failed(op.Kind(), "mkdir", p, err)
	}
	deps.Log.Info("folder created", "path", p)
	return domain.Result{Kind: op.Kind(), Code: domain.CodeOK, Created: &created}
}
