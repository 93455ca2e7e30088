package operation

import (
	"context"
	"fmt"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
)

// RefreshFolder lists a folder on the server and merges the listing into
// the store. Kept-in-sync children that changed are synchronized.
type RefreshFolder struct {
	Folder domain.FileRecord
	// IgnoreETag forces the merge even when the folder ETag did not move.
	IgnoreETag bool
}

func (op RefreshFolder) Kind() domain.OperationKind { return domain.KindRefreshFolder }

func (op RefreshFolder) Target() string { return domain.CleanPath(op.Folder.RemotePath) }

// Execute implements Operation.
func (op RefreshFolder) Execute(ctx context.Context, deps Deps) domain.Result {
	deps = deps.withDefaults()
	p := op.Target()
	log := deps.Log.With("op", "refresh", "path", p)

	folder, err := ensureFolder(ctx, deps, p)
	if err != nil {
		res := failed(op.Kind(), "refresh", p, err)
		res.Folder = &domain.FolderPayload{Folder: domain.FileRecord{RemotePath: p, IsFolder: true}}
		return res
	}
	payload := &domain.FolderPayload{Folder: *folder}

	server, children, err := deps.Server.ListFolder(ctx, p)
	if err == nil && !server.IsFolder {
		err = remote.Classify("refresh", p, fmt.Errorf("%w: %s", domain.ErrNotDirectory, p))
	}
	if err != nil {
		if remote.CodeFor(err) == domain.CodeFileNotFound && p != domain.RootPath {
			log.Info("folder gone from server, dropping local records")
			if derr := deps.Store.Delete(ctx, folder.ID); derr != nil {
				log.Warn("failed to drop folder records", "error", derr)
			}
			removeLocalCopy(deps, *folder)
		}
		res := remote.ResultFor(op.Kind(), err)
		res.Folder = payload
		return res
	}

	if !op.IgnoreETag && folder.TreeETag != "" && folder.TreeETag == server.ETag {
		log.Debug("folder unchanged", "etag", server.ETag)
		payload.Unchanged = true
		return domain.Result{Kind: op.Kind(), Code: domain.CodeOK, Folder: payload}
	}

	stored, err := deps.Store.GetFolderContents(ctx, *folder)
	if err != nil {
		res := failed(op.Kind(), "refresh", p, err)
		res.Folder = payload
		return res
	}

	plan := deps.Planner.PlanRefresh(*folder, server, children, stored)
	if err := deps.Store.SaveFolder(ctx, &plan.Folder, plan.Children, plan.Removed); err != nil {
		res := failed(op.Kind(), "refresh", p, err)
		res.Folder = payload
		return res
	}
	payload.Folder = plan.Folder
	for _, r := range plan.Removed {
		removeLocalCopy(deps, r)
		payload.Removed = append(payload.Removed, r.RemotePath)
	}
	log.Info("folder merged", "new", plan.Stats.New, "updated", plan.Stats.Updated, "removed", plan.Stats.Removed)

	for _, child := range plan.ToSync {
		if blocked(ctx, deps, child) {
			log.Info("skipping file blocked by a failed upload", "file", child)
			continue
		}
		res := SynchronizeFile{RemotePath: child}.Execute(ctx, deps)
		switch {
		case res.Code == domain.CodeSyncConflict:
			payload.Conflicts++
		case !res.Success():
			payload.Failures++
		}
	}
	for _, sub := range plan.ToRefresh {
		res := RefreshFolder{Folder: domain.FileRecord{RemotePath: sub, IsFolder: true}}.Execute(ctx, deps)
		if res.Folder != nil {
			payload.Conflicts += res.Folder.Conflicts
			payload.Failures += res.Folder.Failures
		}
		if !res.Success() {
			payload.Failures++
		}
	}

	return domain.Result{Kind: op.Kind(), Code: domain.CodeOK, Folder: payload}
}
