// Package remote defines how the sync core talks to the ownCloud server.
package remote

import (
	"context"
	"io"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Server is the WebDAV surface used by operations and the transfer engine.
// Paths are remote paths relative to the account root ("/Documents/a.txt").
// Returned records carry server-side attributes only: RemotePath, RemoteID,
// ETag, IsFolder, Size, MimeType and ModifiedAt.
// Errors are *Error values classified by Classify.
type Server interface {
	// Stat returns the properties of one path.
	Stat(ctx context.Context, remotePath string) (domain.FileRecord, error)

	// ListFolder returns the folder's own properties and its direct children.
	ListFolder(ctx context.Context, remotePath string) (domain.FileRecord, []domain.FileRecord, error)

	// Download streams the content; the reader stops when ctx is done.
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)

	// Upload writes r to remotePath, replacing any existing file.
	Upload(ctx context.Context, remotePath string, r io.Reader) error

	MkdirAll(ctx context.Context, remotePath string) error
	Move(ctx context.Context, from, to string, overwrite bool) error
	Remove(ctx context.Context, remotePath string) error
}

// Exists reports whether remotePath exists on the server.
func Exists(ctx context.Context, s Server, remotePath string) (bool, error) {
	_, err := s.Stat(ctx, remotePath)
	if err == nil {
		return true, nil
	}
	if CodeFor(err) == domain.CodeFileNotFound {
		return false, nil
	}
	return false, err
}
