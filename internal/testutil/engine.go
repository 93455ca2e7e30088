package testutil

import (
	"context"
	"sync"

	"github.com/Ning0612/ocsync/internal/domain"
)

// RecordingEngine is a domain.TransferEngine that only records commands.
type RecordingEngine struct {
	mu          sync.Mutex
	uploads     []domain.UploadRequest
	downloads   []domain.FileRecord
	cancels     []domain.FileRecord
	downloading map[string]bool

	// Err, when set, is returned by every request.
	Err error
}

var _ domain.TransferEngine = (*RecordingEngine)(nil)

func NewRecordingEngine() *RecordingEngine {
	return &RecordingEngine{downloading: make(map[string]bool)}
}

func (e *RecordingEngine) RequestUpload(ctx context.Context, req domain.UploadRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.uploads = append(e.uploads, req)
	return nil
}

func (e *RecordingEngine) RequestDownload(ctx context.Context, account string, file domain.FileRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.downloads = append(e.downloads, file)
	e.downloading[file.RemotePath] = true
	return nil
}

func (e *RecordingEngine) Cancel(ctx context.Context, account string, file domain.FileRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels = append(e.cancels, file)
	delete(e.downloading, file.RemotePath)
	return nil
}

func (e *RecordingEngine) IsDownloading(account string, file domain.FileRecord) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.downloading[file.RemotePath]
}

// Uploads returns the recorded upload requests.
func (e *RecordingEngine) Uploads() []domain.UploadRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.UploadRequest(nil), e.uploads...)
}

// Downloads returns the recorded download requests.
func (e *RecordingEngine) Downloads() []domain.FileRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.FileRecord(nil), e.downloads...)
}

// Cancels returns the recorded cancel requests.
func (e *RecordingEngine) Cancels() []domain.FileRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.FileRecord(nil), e.cancels...)
}

// Commands counts every upload and download issued.
func (e *RecordingEngine) Commands() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.uploads) + len(e.downloads)
}
