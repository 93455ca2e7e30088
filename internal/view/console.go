package view

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/progress"
	"github.com/Ning0612/ocsync/internal/remote"
)

// Console renders a screen as plain text lines.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

var _ View = (*Console)(nil)

// NewConsole writes to out. Names are cut to the terminal width when out
// is a terminal.
func NewConsole(out io.Writer) *Console {
	c := &Console{out: out}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			c.width = w
		}
	}
	return c
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) fit(s string) string {
	// 保留大小與日期欄位的寬度
	limit := c.width - 40
	if c.width == 0 || limit < 10 || len(s) <= limit {
		return s
	}
	return s[:limit-1] + "~"
}

func (c *Console) ShowListing(dir domain.FileRecord, children []domain.FileRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s\n", dir.RemotePath)
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, f := range children {
		name := c.fit(f.Name())
		size := progress.FormatBytes(f.Size)
		if f.IsFolder {
			name += "/"
			size = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", flags(f), name, size, formatMillis(f.ModifiedAt))
	}
	w.Flush()
}

func flags(f domain.FileRecord) string {
	b := []byte("---")
	if f.IsDown() {
		b[0] = 'd'
	}
	if f.KeptInSync {
		b[1] = 'k'
	}
	if f.InConflict() {
		b[2] = 'C'
	}
	return string(b)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func (c *Console) ShowDetails(file domain.FileRecord) {
	c.printf("details %s  %s  %s  etag=%s\n", file.RemotePath, file.MimeType, progress.FormatBytes(file.Size), file.ETag)
	if file.IsDown() {
		c.printf("  local copy %s\n", file.StoragePath)
	}
	if file.InConflict() {
		c.printf("  in conflict with server version %s\n", file.ETagInConflict)
	}
}

func (c *Console) ShowTransferState(file domain.FileRecord, event domain.EventType, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	switch event {
	case domain.EventUploadStarted, domain.EventDownloadAdded:
		status = "in progress"
	}
	c.printf("%s %s: %s\n", event, file.RemotePath, status)
}

func (c *Console) ShowPreview(kind PreviewKind, file domain.FileRecord) {
	c.printf("preview (%s) %s\n", kind, file.StoragePath)
}

func (c *Console) OpenFile(file domain.FileRecord) {
	c.printf("open %s\n", file.StoragePath)
}

func (c *Console) SendFile(file domain.FileRecord) {
	c.printf("ready to send %s\n", file.StoragePath)
}

func (c *Console) CloseDetails() {
	c.printf("details closed\n")
}

func (c *Console) ShowSyncing(active bool) {
	if active {
		c.printf("syncing...\n")
	}
}

func (c *Console) Message(text string) {
	c.printf("%s\n", text)
}

func (c *Console) AskCredentials(account string) {
	c.printf("credentials for %s were rejected; run `ocsync login` and try again\n", account)
}

func (c *Console) AskTrust(cert *x509.Certificate) {
	if cert == nil {
		c.printf("server certificate could not be verified\n")
		return
	}
	c.printf("server certificate not trusted\n  subject: %s\n  issuer: %s\n  valid: %s to %s\n  sha256: %s\n",
		cert.Subject, cert.Issuer,
		cert.NotBefore.Format(time.DateOnly), cert.NotAfter.Format(time.DateOnly),
		remote.Fingerprint(cert))
}

func (c *Console) ShowConflict(file domain.FileRecord) {
	c.printf("conflict on %s: local and server copies both changed (run `ocsync resolve %s`)\n",
		file.RemotePath, file.RemotePath)
}
