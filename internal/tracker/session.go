// Package tracker keeps a screen's state in step with transfer events.
package tracker

import (
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/view"
)

// Session is the state of one screen. It is owned by that screen's event
// loop; nothing else may touch it.
type Session struct {
	Account    string
	CurrentDir domain.FileRecord
	// CurrentFile is the file shown in the second pane, if any.
	CurrentFile *domain.FileRecord
	Detail      view.Pane

	// WaitingToPreview is shown once its download finishes.
	WaitingToPreview *domain.FileRecord
	// WaitingToSend is handed to the view once it is down.
	WaitingToSend *domain.FileRecord

	// OpIDWaitingFor is the user operation the screen waits on; 0 for none.
	OpIDWaitingFor int64
	SyncInProgress bool
	Focused        bool
}

// NewSession returns a session browsing the root of account.
func NewSession(account string) *Session {
	return &Session{
		Account:    account,
		CurrentDir: domain.FileRecord{RemotePath: domain.RootPath, IsFolder: true},
	}
}

func (s *Session) showing(p string) bool {
	return s.CurrentFile != nil && s.CurrentFile.RemotePath == p
}

func samePath(f *domain.FileRecord, p string) bool {
	return f != nil && f.RemotePath == p
}
