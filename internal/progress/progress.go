// Package progress reports byte progress of individual transfers.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Direction of a transfer.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

// Update is one progress notification of one transfer.
type Update struct {
	Type           UpdateType
	Direction      Direction
	Account        string
	RemotePath     string
	Bytes          int64
	Total          int64 // 0 when unknown
	BytesPerSecond float64
	Error          error
}

// Callback receives updates; it may be called from several transfer
// goroutines at once.
type Callback func(update Update)

// Reporter hands out a Transfer per started transfer.
type Reporter interface {
	Start(dir Direction, account, remotePath string, total int64) *Transfer
}

// CallbackReporter implements Reporter with a callback function.
// Progress updates of one transfer are throttled to one per interval.
type CallbackReporter struct {
	callback Callback
	interval time.Duration
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback, interval time.Duration) *CallbackReporter {
	return &CallbackReporter{callback: callback, interval: interval}
}

// Start begins tracking a new transfer.
func (r *CallbackReporter) Start(dir Direction, account, remotePath string, total int64) *Transfer {
	t := &Transfer{
		callback: r.callback,
		interval: r.interval,
		base:     Update{Direction: dir, Account: account, RemotePath: remotePath, Total: total},
		start:    time.Now(),
	}
	t.emit(UpdateStart, nil)
	return t
}

// Transfer tracks the bytes of one transfer.
type Transfer struct {
	callback Callback
	interval time.Duration
	base     Update
	start    time.Time

	mu       sync.Mutex
	bytes    int64
	lastEmit time.Time
	done     bool
}

// Add records n more transferred bytes.
func (t *Transfer) Add(n int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.bytes += n
	now := time.Now()
	if t.done || now.Sub(t.lastEmit) < t.interval {
		t.mu.Unlock()
		return
	}
	t.lastEmit = now
	t.mu.Unlock()
	t.emit(UpdateProgress, nil)
}

// Complete marks the transfer as finished.
func (t *Transfer) Complete() {
	t.finish(UpdateComplete, nil)
}

// Fail marks the transfer as failed.
func (t *Transfer) Fail(err error) {
	t.finish(UpdateError, err)
}

// Bytes returns the bytes transferred so far.
func (t *Transfer) Bytes() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

func (t *Transfer) finish(typ UpdateType, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.emit(typ, err)
}

func (t *Transfer) emit(typ UpdateType, err error) {
	if t.callback == nil {
		return
	}
	t.mu.Lock()
	u := t.base
	u.Type = typ
	u.Bytes = t.bytes
	u.Error = err
	if elapsed := time.Since(t.start).Seconds(); elapsed > 0 {
		u.BytesPerSecond = float64(t.bytes) / elapsed
	}
	t.mu.Unlock()

	// callback 在鎖外呼叫
	t.callback(u)
}

// Reader wraps an io.Reader to count bytes read into a Transfer.
type Reader struct {
	r io.Reader
	t *Transfer
}

// NewReader creates a new progress-tracking reader
func NewReader(r io.Reader, t *Transfer) *Reader {
	return &Reader{r: r, t: t}
}

// Read implements io.Reader
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.t.Add(int64(n))
	}
	return n, err
}

// NullReporter hands out transfers that report nowhere.
type NullReporter struct{}

func (NullReporter) Start(dir Direction, account, remotePath string, total int64) *Transfer {
	return &Transfer{base: Update{Direction: dir, Account: account, RemotePath: remotePath, Total: total}, start: time.Now()}
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatBar renders "[====>    ]  42.0%"; empty when total is unknown.
func FormatBar(current, total int64, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	if percent > 1 {
		percent = 1
	}
	filled := int(percent * float64(width))

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", filled))
	if filled < width {
		b.WriteByte('>')
		b.WriteString(strings.Repeat(" ", width-filled-1))
	}
	b.WriteByte(']')
	return fmt.Sprintf("%s %5.1f%%", b.String(), percent*100)
}

// Line renders one update as a status line for a terminal.
func Line(u Update) string {
	switch u.Type {
	case UpdateComplete:
		return fmt.Sprintf("%s %s done (%s)", u.Direction, u.RemotePath, FormatBytes(u.Bytes))
	case UpdateError:
		return fmt.Sprintf("%s %s failed: %v", u.Direction, u.RemotePath, u.Error)
	}
	if bar := FormatBar(u.Bytes, u.Total, 20); bar != "" {
		return fmt.Sprintf("%s %s %s %s", u.Direction, u.RemotePath, bar, FormatSpeed(u.BytesPerSecond))
	}
	return fmt.Sprintf("%s %s %s %s", u.Direction, u.RemotePath, FormatBytes(u.Bytes), FormatSpeed(u.BytesPerSecond))
}
