// Package operation holds the units of work that reconcile local records
// with the server. Each operation returns exactly one domain.Result.
package operation

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/Ning0612/ocsync/internal/adapter/local"
	"github.com/Ning0612/ocsync/internal/core/diff"
	"github.com/Ning0612/ocsync/internal/core/planner"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/remote"
)

// Operation is one reconciliation step.
type Operation interface {
	Kind() domain.OperationKind
	// Target is the remote path the operation works on.
	Target() string
	Execute(ctx context.Context, deps Deps) domain.Result
}

// Deps are the collaborators an operation works with.
type Deps struct {
	Account  string
	Store    domain.FileStore
	Uploads  domain.UploadLog
	Server   remote.Server
	Engine   domain.TransferEngine
	Local    *local.Storage
	Planner  planner.Planner
	Comparer diff.Comparer
	Now      func() time.Time
	Log      logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Planner == nil {
		p := planner.NewDefaultPlanner(nil)
		p.Now = d.Now
		d.Planner = p
	}
	if d.Comparer == nil {
		d.Comparer = diff.NewDefaultComparer()
	}
	if d.Log == nil {
		d.Log = logger.With("component", "operation", "account", d.Account)
	}
	return d
}

func failed(kind domain.OperationKind, op, p string, err error) domain.Result {
	return remote.ResultFor(kind, remote.Classify(op, p, err))
}

// isDown reports whether the local copy of f is really there.
func isDown(deps Deps, f *domain.FileRecord) bool {
	return f.IsDown() && deps.Local.Exists(f.StoragePath)
}

// blocked reports whether the last upload of p failed in a way a retry
// without the user would repeat.
func blocked(ctx context.Context, deps Deps, p string) bool {
	if deps.Uploads == nil {
		return false
	}
	last, err := deps.Uploads.LastUploadResult(ctx, p)
	return err == nil && last.BlocksAutomatedSync()
}

// ensureFolder returns the record of folder p, creating placeholder
// records for it and missing ancestors. Placeholders carry no tree ETag,
// so the next refresh lists them.
func ensureFolder(ctx context.Context, deps Deps, p string) (*domain.FileRecord, error) {
	f, err := deps.Store.GetByPath(ctx, p)
	if err != nil {
		return nil, err
	}
	if f != nil {
		if !f.IsFolder {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, p)
		}
		return f, nil
	}

	var parentID int64
	if p != domain.RootPath {
		parent, err := ensureFolder(ctx, deps, domain.ParentPath(p))
		if err != nil {
			return nil, err
		}
		parentID = parent.ID
	}
	f = &domain.FileRecord{RemotePath: p, ParentID: parentID, IsFolder: true, MimeType: "httpd/unix-directory"}
	if err := deps.Store.Upsert(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// removeLocalCopy deletes the local copy of a record that is gone from the
// server. Pinned files and files with unsynced edits are kept.
func removeLocalCopy(deps Deps, f domain.FileRecord) {
	log := deps.Log.With("path", f.RemotePath)
	if f.KeptInSync {
		log.Debug("keeping local copy of pinned file")
		return
	}
	if f.IsFolder {
		if err := deps.Local.RemoveTree(f.RemotePath); err != nil {
			log.Warn("failed to remove local folder", "error", err)
		}
		return
	}
	if f.StoragePath == "" {
		return
	}
	if mod, err := deps.Local.ModTime(f.StoragePath); err == nil && mod > f.LastSyncForData {
		log.Warn("keeping local copy with unsynced changes", "storage_path", f.StoragePath)
		return
	}
	if err := deps.Local.Remove(f.StoragePath); err != nil {
		log.Warn("failed to remove local copy", "error", err)
	}
}

// validName checks a single path element.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
		}
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: leading or trailing space in %q", domain.ErrInvalidName, name)
	}
	return nil
}

func joinPath(dir, name string) string {
	return domain.CleanPath(path.Join(dir, name))
}
