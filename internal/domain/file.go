package domain

import (
	"path"
	"strings"
)

// RootPath is the remote path of an account's root folder.
const RootPath = "/"

// FileRecord is the locally cached metadata of one remote file or folder.
type FileRecord struct {
	ID          int64
	ParentID    int64
	AccountName string

	// RemotePath is unique per account. Folders carry no trailing slash
	// except the root.
	RemotePath string
	RemoteID   string

	// StoragePath is the local copy; empty means not downloaded.
	StoragePath string

	ETag string
	// TreeETag is the folder ETag at the last complete merge of its children.
	TreeETag string
	// ETagInConflict is the server ETag that conflicted with local edits.
	ETagInConflict string

	IsFolder   bool
	KeptInSync bool
	Size       int64
	MimeType   string
	// Checksum is the SHA-256 of the local copy at its last transfer.
	Checksum string

	// Timestamps are unix milliseconds; 0 means never.
	ModifiedAt            int64
	LastSyncForProperties int64
	LastSyncForData       int64
	LocalModified         int64
}

// IsDown reports whether the content is cached locally.
func (f *FileRecord) IsDown() bool {
	return f != nil && f.StoragePath != "" && f.LastSyncForData > 0
}

// InConflict reports whether a conflict marker is set.
func (f *FileRecord) InConflict() bool {
	return f != nil && f.ETagInConflict != ""
}

// Name returns the last path element.
func (f *FileRecord) Name() string {
	if f.RemotePath == RootPath {
		return RootPath
	}
	return path.Base(f.RemotePath)
}

// ParentPath returns the remote path of the containing folder.
func (f *FileRecord) ParentPath() string {
	return ParentPath(f.RemotePath)
}

// CleanPath normalizes a remote path: leading slash, no trailing slash,
// no dot segments.
func CleanPath(p string) string {
	if p == "" {
		return RootPath
	}
	return path.Clean("/" + p)
}

// ParentPath returns the parent of a remote path; the root is its own parent.
func ParentPath(p string) string {
	return path.Dir(CleanPath(p))
}

// IsDescendant reports whether p equals dir or lies somewhere below it.
func IsDescendant(p, dir string) bool {
	p, dir = CleanPath(p), CleanPath(dir)
	if dir == RootPath || p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
