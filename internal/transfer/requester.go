package transfer

import (
	"context"
	"fmt"

	"github.com/Ning0612/ocsync/internal/domain"
)

// UploadNewFiles asks engine to upload user files into the account.
// Existing remote names are never overwritten.
func UploadNewFiles(ctx context.Context, engine domain.TransferEngine, account string, localPaths, remotePaths []string, behavior domain.UploadBehavior, createParents bool) error {
	return engine.RequestUpload(ctx, domain.UploadRequest{
		Account:       account,
		LocalPaths:    localPaths,
		RemotePaths:   remotePaths,
		Behavior:      behavior,
		CreateParents: createParents,
		Origin:        domain.OriginUser,
	})
}

// UploadNewFile is UploadNewFiles for a single file.
func UploadNewFile(ctx context.Context, engine domain.TransferEngine, account, localPath, remotePath string, behavior domain.UploadBehavior, createParents bool) error {
	return UploadNewFiles(ctx, engine, account, []string{localPath}, []string{remotePath}, behavior, createParents)
}

// UploadUpdate pushes the local copy of an already known file.
func UploadUpdate(ctx context.Context, engine domain.TransferEngine, account string, file domain.FileRecord, behavior domain.UploadBehavior, forceOverwrite bool) error {
	if file.StoragePath == "" {
		return fmt.Errorf("upload %s: %w", file.RemotePath, domain.ErrNotFound)
	}
	return engine.RequestUpload(ctx, domain.UploadRequest{
		Account:        account,
		LocalPaths:     []string{file.StoragePath},
		RemotePaths:    []string{file.RemotePath},
		Behavior:       behavior,
		ForceOverwrite: forceOverwrite,
		Origin:         domain.OriginSync,
	})
}
