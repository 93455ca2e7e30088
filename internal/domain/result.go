package domain

import (
	"fmt"
	"time"
)

// ResultCode classifies the outcome of an operation.
type ResultCode string

const (
	CodeOK                           ResultCode = "OK"
	CodeSyncConflict                 ResultCode = "SYNC_CONFLICT"
	CodeUnauthorized                 ResultCode = "UNAUTHORIZED"
	CodeSSLRecoverablePeerUnverified ResultCode = "SSL_RECOVERABLE_PEER_UNVERIFIED"
	CodeCancelled                    ResultCode = "CANCELLED"
	CodeSpecificServiceUnavailable   ResultCode = "SPECIFIC_SERVICE_UNAVAILABLE"
	CodeServiceUnavailable           ResultCode = "SERVICE_UNAVAILABLE"
	CodeFileNotFound                 ResultCode = "FILE_NOT_FOUND"
	CodeHostNotAvailable             ResultCode = "HOST_NOT_AVAILABLE"
	CodeForbidden                    ResultCode = "FORBIDDEN"
	CodeInvalidOverwrite             ResultCode = "INVALID_OVERWRITE"
	CodeInvalidCharacterInName       ResultCode = "INVALID_CHARACTER_IN_NAME"
	CodeLocalStorageNotMoved         ResultCode = "LOCAL_STORAGE_NOT_MOVED"
	CodeUnknownError                 ResultCode = "UNKNOWN_ERROR"
)

// OperationKind tags which payload of a Result is set.
type OperationKind int

const (
	KindRefreshFolder OperationKind = iota + 1
	KindSynchronizeFile
	KindRenameFile
	KindRemoveFile
	KindCreateFolder
)

func (k OperationKind) String() string {
	switch k {
	case KindRefreshFolder:
		return "refresh-folder"
	case KindSynchronizeFile:
		return "synchronize-file"
	case KindRenameFile:
		return "rename-file"
	case KindRemoveFile:
		return "remove-file"
	case KindCreateFolder:
		return "create-folder"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the single outcome of one operation. Exactly the payload
// matching Kind is non-nil on success; failures may carry it too.
type Result struct {
	OperationID int64
	Kind        OperationKind
	// Target is the remote path the operation worked on.
	Target string
	Code   ResultCode
	Err    error

	// HTTPCode and HTTPPhrase are set for server-side failures.
	HTTPCode   int
	HTTPPhrase string

	Started  time.Time
	Finished time.Time

	Folder  *FolderPayload
	File    *FilePayload
	Renamed *RenamePayload
	Removed *FileRecord
	Created *FileRecord
}

// Success reports whether the operation finished with OK.
func (r Result) Success() bool {
	return r.Code == CodeOK
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s #%d: %s (%v)", r.Kind, r.OperationID, r.Code, r.Err)
	}
	return fmt.Sprintf("%s #%d: %s", r.Kind, r.OperationID, r.Code)
}

// FolderPayload describes a refreshed folder.
type FolderPayload struct {
	Folder    FileRecord
	Unchanged bool
	Conflicts int
	Failures  int
	Removed   []string
}

// FilePayload describes a synchronized file.
type FilePayload struct {
	File              FileRecord
	TransferRequested bool
}

// RenamePayload describes a renamed file.
type RenamePayload struct {
	File    FileRecord
	OldPath string
	NewPath string
}
