// Package view is the port between the sync core and whatever renders it.
package view

import (
	"crypto/x509"
	"strings"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Pane is what the second pane of a screen shows.
type Pane int

const (
	PaneNone Pane = iota
	PaneDetails
	PanePreview
)

func (p Pane) String() string {
	switch p {
	case PaneNone:
		return "none"
	case PaneDetails:
		return "details"
	case PanePreview:
		return "preview"
	}
	return "unknown"
}

// PreviewKind is the handler chosen to show a file.
type PreviewKind int

const (
	PreviewNone PreviewKind = iota
	PreviewImage
	PreviewAudio
	PreviewVideo
	PreviewText
	// PreviewOpen hands the file to the default handler.
	PreviewOpen
)

func (k PreviewKind) String() string {
	switch k {
	case PreviewNone:
		return "none"
	case PreviewImage:
		return "image"
	case PreviewAudio:
		return "audio"
	case PreviewVideo:
		return "video"
	case PreviewText:
		return "text"
	case PreviewOpen:
		return "open"
	}
	return "unknown"
}

// DownloadPreview picks the handler for a file that finished downloading
// while a preview was pending: audio, then video, then text, else open.
func DownloadPreview(mimeType string) PreviewKind {
	switch kind := previewable(mimeType); kind {
	case PreviewAudio, PreviewVideo, PreviewText:
		return kind
	}
	return PreviewOpen
}

// UploadPreview picks the in-pane preview for a file whose upload finished
// while its details were shown. PreviewNone keeps the details pane.
func UploadPreview(mimeType string) PreviewKind {
	return previewable(mimeType)
}

func previewable(mimeType string) PreviewKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return PreviewImage
	case strings.HasPrefix(mt, "audio/"):
		return PreviewAudio
	case strings.HasPrefix(mt, "video/"):
		return PreviewVideo
	case strings.HasPrefix(mt, "text/"):
		return PreviewText
	}
	return PreviewNone
}

// View renders one screen. Calls come from the session event loop only.
type View interface {
	ShowListing(dir domain.FileRecord, children []domain.FileRecord)
	ShowDetails(file domain.FileRecord)
	// ShowTransferState tells the second pane a transfer of file moved.
	ShowTransferState(file domain.FileRecord, event domain.EventType, success bool)
	ShowPreview(kind PreviewKind, file domain.FileRecord)
	OpenFile(file domain.FileRecord)
	SendFile(file domain.FileRecord)
	CloseDetails()
	ShowSyncing(active bool)
	Message(text string)

	AskCredentials(account string)
	AskTrust(cert *x509.Certificate)
	ShowConflict(file domain.FileRecord)
}
