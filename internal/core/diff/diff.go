package diff

import "github.com/Ning0612/ocsync/internal/domain"

// Change says which side of a file moved since the last sync.
type Change int

const (
	// Unchanged indicates local and server copies still match the last sync
	Unchanged Change = iota
	// ServerChanged indicates only the server copy changed
	ServerChanged
	// LocalChanged indicates only the local copy changed
	LocalChanged
	// BothChanged indicates a conflict
	BothChanged
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case ServerChanged:
		return "server-changed"
	case LocalChanged:
		return "local-changed"
	case BothChanged:
		return "both-changed"
	}
	return "unknown"
}

// LocalState is what is known about the local copy right now.
type LocalState struct {
	// Modified is the mtime of the local copy in unix milliseconds.
	Modified int64
	// Checksum is the SHA-256 of the local copy; empty when not computed.
	Checksum string
}

// Comparer decides what changed for a downloaded file.
type Comparer interface {
	// Compare checks known (the stored record) against server (fresh
	// properties, nil for push-only) and the local copy.
	Compare(known domain.FileRecord, server *domain.FileRecord, local LocalState) Change
}

// DefaultComparer uses ETags for the server side and mtime plus checksum
// for the local side.
type DefaultComparer struct{}

// NewDefaultComparer creates a new DefaultComparer
func NewDefaultComparer() *DefaultComparer {
	return &DefaultComparer{}
}

// Compare implements the Comparer interface
func (c *DefaultComparer) Compare(known domain.FileRecord, server *domain.FileRecord, local LocalState) Change {
	serverChanged := HasServerChange(known, server)
	localChanged := HasLocalChange(known, local)

	switch {
	case serverChanged && localChanged:
		return BothChanged
	case serverChanged:
		return ServerChanged
	case localChanged:
		return LocalChanged
	}
	return Unchanged
}

// HasServerChange reports whether the server copy moved past known.
// Records saved before ETags were kept fall back to comparing the server
// mtime with the last data sync.
func HasServerChange(known domain.FileRecord, server *domain.FileRecord) bool {
	if server == nil {
		return false
	}
	if known.ETag == "" {
		return server.ModifiedAt > known.LastSyncForData
	}
	return server.ETag != known.ETag
}

// HasLocalChange reports whether the local copy was written after the last
// data sync. A touched file whose content hash still matches is unchanged.
func HasLocalChange(known domain.FileRecord, local LocalState) bool {
	if local.Modified <= known.LastSyncForData {
		return false
	}
	if local.Checksum != "" && known.Checksum != "" {
		return local.Checksum != known.Checksum
	}
	return true
}
