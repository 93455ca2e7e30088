package progress

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) add(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) types() []UpdateType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UpdateType, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Type
	}
	return out
}

func TestTransfer_Lifecycle(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.add, 0)

	tr := reporter.Start(Download, "alice@cloud", "/a.txt", 10)
	tr.Add(4)
	tr.Add(6)
	tr.Complete()
	tr.Complete()

	got := rec.types()
	want := []UpdateType{UpdateStart, UpdateProgress, UpdateProgress, UpdateComplete}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("update %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	last := rec.updates[len(rec.updates)-1]
	if last.Bytes != 10 || last.Total != 10 {
		t.Errorf("expected 10/10 bytes, got %d/%d", last.Bytes, last.Total)
	}
	if last.Direction != Download || last.RemotePath != "/a.txt" || last.Account != "alice@cloud" {
		t.Errorf("unexpected identity %+v", last)
	}
}

func TestTransfer_Throttled(t *testing.T) {
	rec := &recorder{}
	reporter := NewCallbackReporter(rec.add, 1<<62)

	tr := reporter.Start(Upload, "a", "/b", 0)
	for i := 0; i < 100; i++ {
		tr.Add(1)
	}
	tr.Fail(errors.New("boom"))

	got := rec.types()
	// the first Add passes since lastEmit is zero
	if len(got) != 3 || got[2] != UpdateError {
		t.Errorf("expected start, one progress and error, got %v", got)
	}
	if tr.Bytes() != 100 {
		t.Errorf("expected 100 bytes, got %d", tr.Bytes())
	}
}

func TestReader_CountsBytes(t *testing.T) {
	tr := NullReporter{}.Start(Download, "a", "/b", 0)
	data, err := io.ReadAll(NewReader(strings.NewReader("hello world"), tr))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("expected passthrough, got %q", data)
	}
	if tr.Bytes() != 11 {
		t.Errorf("expected 11 bytes, got %d", tr.Bytes())
	}
}

func TestNilTransfer(t *testing.T) {
	var tr *Transfer
	tr.Add(1)
	tr.Complete()
	tr.Fail(nil)
	if tr.Bytes() != 0 {
		t.Error("expected zero bytes for nil transfer")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBar(t *testing.T) {
	if got := FormatBar(5, 10, 10); got != "[=====>    ]  50.0%" {
		t.Errorf("unexpected bar %q", got)
	}
	if got := FormatBar(10, 10, 4); got != "[====] 100.0%" {
		t.Errorf("unexpected full bar %q", got)
	}
	if got := FormatBar(1, 0, 10); got != "" {
		t.Errorf("expected empty bar for unknown total, got %q", got)
	}
}

func TestLine(t *testing.T) {
	done := Line(Update{Type: UpdateComplete, Direction: Upload, RemotePath: "/a", Bytes: 2048})
	if done != "upload /a done (2.0 KB)" {
		t.Errorf("unexpected line %q", done)
	}
	failed := Line(Update{Type: UpdateError, Direction: Download, RemotePath: "/a", Error: errors.New("x")})
	if !strings.Contains(failed, "failed: x") {
		t.Errorf("unexpected line %q", failed)
	}
}
