package testutil

import (
	"crypto/x509"
	"fmt"
	"strings"
	"sync"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/view"
)

// RecordingView is a view.View that logs every call as one line.
type RecordingView struct {
	mu    sync.Mutex
	calls []string
}

var _ view.View = (*RecordingView)(nil)

func (v *RecordingView) add(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, fmt.Sprintf(format, args...))
}

// Calls returns the logged calls in order.
func (v *RecordingView) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// Count counts logged calls starting with prefix.
func (v *RecordingView) Count(prefix string) int {
	n := 0
	for _, c := range v.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets the logged calls.
func (v *RecordingView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = nil
}

func (v *RecordingView) ShowListing(dir domain.FileRecord, children []domain.FileRecord) {
	v.add("listing %s %d", dir.RemotePath, len(children))
}

func (v *RecordingView) ShowDetails(file domain.FileRecord) {
	v.add("details %s", file.RemotePath)
}

func (v *RecordingView) ShowTransferState(file domain.FileRecord, event domain.EventType, success bool) {
	v.add("transfer %s %s %t", file.RemotePath, event, success)
}

func (v *RecordingView) ShowPreview(kind view.PreviewKind, file domain.FileRecord) {
	v.add("preview %s %s", kind, file.RemotePath)
}

func (v *RecordingView) OpenFile(file domain.FileRecord) { v.add("open %s", file.RemotePath) }

func (v *RecordingView) SendFile(file domain.FileRecord) { v.add("send %s", file.RemotePath) }

func (v *RecordingView) CloseDetails() { v.add("close") }

func (v *RecordingView) ShowSyncing(active bool) { v.add("syncing %t", active) }

func (v *RecordingView) Message(text string) { v.add("message %s", text) }

func (v *RecordingView) AskCredentials(account string) { v.add("credentials %s", account) }

func (v *RecordingView) AskTrust(cert *x509.Certificate) { v.add("trust") }

func (v *RecordingView) ShowConflict(file domain.FileRecord) { v.add("conflict %s", file.RemotePath) }
