package domain

import "context"

// UploadBehavior says what happens to the local source after an upload.
type UploadBehavior int

const (
	// BehaviorCopy copies the source into the account save dir.
	BehaviorCopy UploadBehavior = iota
	// BehaviorMove moves the source into the account save dir.
	BehaviorMove
	// BehaviorForget leaves the source where it is and keeps no local copy.
	BehaviorForget
)

func (b UploadBehavior) String() string {
	switch b {
	case BehaviorCopy:
		return "copy"
	case BehaviorMove:
		return "move"
	case BehaviorForget:
		return "forget"
	}
	return "unknown"
}

// UploadOrigin records who asked for an upload.
type UploadOrigin int

const (
	OriginUser UploadOrigin = iota
	OriginSync
	OriginConflict
)

func (o UploadOrigin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginSync:
		return "sync"
	case OriginConflict:
		return "conflict"
	}
	return "unknown"
}

// UploadRequest asks the engine to upload LocalPaths[i] to RemotePaths[i].
type UploadRequest struct {
	Account        string
	LocalPaths     []string
	RemotePaths    []string
	Behavior       UploadBehavior
	CreateParents  bool
	ForceOverwrite bool
	Origin         UploadOrigin
	// LinkedTo is the folder the upload was started from, if any.
	LinkedTo string
}

// UploadResult is the last outcome recorded for an upload of a path.
type UploadResult string

const (
	UploadSucceeded       UploadResult = "succeeded"
	UploadCredentialError UploadResult = "credential_error"
	UploadFolderError     UploadResult = "folder_error"
	UploadFileNotFound    UploadResult = "file_not_found"
	UploadFileError       UploadResult = "file_error"
	UploadPrivilegesError UploadResult = "privileges_error"
	UploadConflictError   UploadResult = "conflict_error"
	UploadNetworkError    UploadResult = "network_error"
	UploadCancelled       UploadResult = "cancelled"
	UploadUnknownError    UploadResult = "unknown_error"
)

// BlocksAutomatedSync reports whether a later automatic sync would fail the
// same way and must wait for the user.
func (r UploadResult) BlocksAutomatedSync() bool {
	switch r {
	case UploadCredentialError, UploadFolderError, UploadFileNotFound,
		UploadFileError, UploadPrivilegesError, UploadConflictError:
		return true
	}
	return false
}

// EventType names a transfer topic.
type EventType string

const (
	EventUploadStarted    EventType = "upload-started"
	EventUploadFinished   EventType = "upload-finished"
	EventDownloadAdded    EventType = "download-added"
	EventDownloadFinished EventType = "download-finished"
)

// TransferEvent is published at least once per transfer state change.
type TransferEvent struct {
	Type        EventType
	AccountName string
	RemotePath  string
	// OldRemotePath is set when the upload landed under a different name.
	OldRemotePath string
	// LinkedToPath is the folder the transfer was started from, if any.
	LinkedToPath string
	Success      bool
	Err          error
}

// TransferEngine performs uploads and downloads in the background.
type TransferEngine interface {
	RequestUpload(ctx context.Context, req UploadRequest) error
	RequestDownload(ctx context.Context, account string, file FileRecord) error
	Cancel(ctx context.Context, account string, file FileRecord) error
	IsDownloading(account string, file FileRecord) bool
}
