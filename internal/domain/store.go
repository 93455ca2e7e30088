package domain

import "context"

// FileStore is the per-account FileRecord store. Lookups of a missing
// record return (nil, nil). Every method is one transaction.
type FileStore interface {
	GetByPath(ctx context.Context, remotePath string) (*FileRecord, error)
	GetByID(ctx context.Context, id int64) (*FileRecord, error)
	GetFolderContents(ctx context.Context, folder FileRecord) ([]FileRecord, error)
	Upsert(ctx context.Context, f *FileRecord) error
	Delete(ctx context.Context, id int64) error

	// SaveFolder writes a merged folder, its current children and drops
	// the removed ones (with their descendants). Children get their IDs set.
	SaveFolder(ctx context.Context, folder *FileRecord, children []FileRecord, removed []FileRecord) error
	// SaveConflict sets the conflict marker; an empty etag clears it.
	SaveConflict(ctx context.Context, id int64, etagInConflict string) error
	// RenameTree moves a record and its descendants to a new path, and
	// their local copies from storageFrom to storageTo when set.
	RenameTree(ctx context.Context, from, to, storageFrom, storageTo string) error
}

// UploadLog remembers the last upload outcome per remote path.
type UploadLog interface {
	SaveUploadResult(ctx context.Context, remotePath string, result UploadResult) error
	LastUploadResult(ctx context.Context, remotePath string) (UploadResult, error)
}
