package domain

import "errors"

// Store errors - 檔案記錄層錯誤
var (
	// ErrNotFound indicates the requested record or path does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the path is already taken
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates a folder was expected
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates a regular file was expected
	ErrNotFile = errors.New("not a file")

	// ErrOutsideRoot indicates a path escapes the account save directory
	ErrOutsideRoot = errors.New("path escapes storage root")

	// ErrInvalidName indicates a file name that cannot exist on the server
	ErrInvalidName = errors.New("invalid file name")
)

// Sync errors - 同步邏輯層錯誤
var (
	// ErrSyncConflict indicates both copies changed since the last sync
	ErrSyncConflict = errors.New("sync conflict")

	// ErrNoConflict indicates a resolver was opened for a file that is not in conflict
	ErrNoConflict = errors.New("file is not in conflict")

	// ErrConflictOpen indicates the resolver is already awaiting a decision
	ErrConflictOpen = errors.New("conflict resolution already in progress")

	// ErrConflictClosed indicates a decision arrived for a finished conflict
	ErrConflictClosed = errors.New("conflict already resolved")
)

// Transfer errors - 傳輸層錯誤
var (
	// ErrTransferQueueClosed indicates the engine is shutting down
	ErrTransferQueueClosed = errors.New("transfer queue closed")

	// ErrUnknownAccount indicates a request for an account the engine does not serve
	ErrUnknownAccount = errors.New("unknown account")

	// ErrMismatchedPaths indicates local and remote path lists differ in length
	ErrMismatchedPaths = errors.New("local and remote path counts differ")
)

// Session errors - 畫面事件迴圈錯誤
var (
	// ErrSessionClosed indicates the session loop has stopped
	ErrSessionClosed = errors.New("session closed")

	// ErrNoPendingCertificate indicates a trust answer with no certificate waiting
	ErrNoPendingCertificate = errors.New("no certificate awaiting a decision")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
