package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/remote"
)

type entry struct {
	data   []byte
	etag   string
	folder bool
	mod    time.Time
	id     string
}

// FakeServer is an in-memory remote.Server. Changing a file moves the
// ETag of every ancestor folder, as ownCloud does.
type FakeServer struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     int
	fail    map[string]error
	gates   map[string]chan struct{}
	calls   []string
}

var _ remote.Server = (*FakeServer)(nil)

// NewFakeServer returns a server holding only the root folder.
func NewFakeServer() *FakeServer {
	s := &FakeServer{
		entries: make(map[string]*entry),
		fail:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
	s.entries["/"] = &entry{folder: true, etag: "root-0", mod: time.Unix(1700000000, 0), id: "id-root"}
	return s
}

// Put creates or replaces a file and returns its new ETag.
func (s *FakeServer) Put(p string, data string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(domain.CleanPath(p), []byte(data))
}

// Mkdir creates a folder and its parents.
func (s *FakeServer) Mkdir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(domain.CleanPath(p))
}

// Delete drops a path and everything below it.
func (s *FakeServer) Delete(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(domain.CleanPath(p))
}

// ETag returns the current ETag of p, or "".
func (s *FakeServer) ETag(p string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[domain.CleanPath(p)]; ok {
		return e.etag
	}
	return ""
}

// Content returns the data of p and whether it exists.
func (s *FakeServer) Content(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[domain.CleanPath(p)]
	if !ok {
		return "", false
	}
	return string(e.data), true
}

// Paths lists every path on the server.
func (s *FakeServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Fail makes every call on p return err until cleared with a nil err.
func (s *FakeServer) Fail(p string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, domain.CleanPath(p))
		return
	}
	s.fail[domain.CleanPath(p)] = err
}

// Hold blocks transfers of p until the returned release func is called.
func (s *FakeServer) Hold(p string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[domain.CleanPath(p)] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the "op path" log of every call.
func (s *FakeServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount counts logged calls with the given prefix.
func (s *FakeServer) CallCount(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *FakeServer) begin(ctx context.Context, op, p string) error {
	s.mu.Lock()
	s.calls = append(s.calls, op+" "+p)
	err := s.fail[p]
	gate := s.gates[p]
	s.mu.Unlock()

	if err != nil {
		return remote.Classify(op, p, err)
	}
	if gate != nil && (op == "download" || op == "upload") {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.Classify(op, p, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return remote.Classify(op, p, err)
	}
	return nil
}

func (s *FakeServer) record(p string, e *entry) domain.FileRecord {
	f := domain.FileRecord{
		RemotePath: p,
		RemoteID:   e.id,
		ETag:       e.etag,
		IsFolder:   e.folder,
		ModifiedAt: e.mod.UnixMilli(),
	}
	if e.folder {
		f.MimeType = "httpd/unix-directory"
	} else {
		f.Size = int64(len(e.data))
		f.MimeType = mimeFor(p)
	}
	return f
}

func mimeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".txt":
		return "text/plain"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

func (s *FakeServer) nextETag() string {
	s.seq++
	return fmt.Sprintf("etag-%d", s.seq)
}

func (s *FakeServer) touchAncestors(p string) {
	for dir := domain.ParentPath(p); ; dir = domain.ParentPath(dir) {
		if e, ok := s.entries[dir]; ok {
			e.etag = s.nextETag()
		}
		if dir == "/" {
			return
		}
	}
}

func (s *FakeServer) mkdirAll(p string) {
	if p == "/" {
		return
	}
	if _, ok := s.entries[p]; ok {
		return
	}
	s.mkdirAll(domain.ParentPath(p))
	s.seq++
	s.entries[p] = &entry{folder: true, etag: fmt.Sprintf("etag-%d", s.seq), mod: time.Now(), id: fmt.Sprintf("id-%d", s.seq)}
	s.touchAncestors(p)
}

func (s *FakeServer) put(p string, data []byte) string {
	s.mkdirAll(domain.ParentPath(p))
	e, ok := s.entries[p]
	if !ok {
		s.seq++
		e = &entry{id: fmt.Sprintf("id-%d", s.seq)}
		s.entries[p] = e
	}
	e.data = append([]byte(nil), data...)
	e.etag = s.nextETag()
	e.mod = time.Now()
	s.touchAncestors(p)
	return e.etag
}

func (s *FakeServer) remove(p string) {
	for q := range s.entries {
		if q == p || domain.IsDescendant(q, p) && q != "/" {
			delete(s.entries, q)
		}
	}
	s.touchAncestors(p)
}

func (s *FakeServer) Stat(ctx context.Context, remotePath string) (domain.FileRecord, error) {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "stat", p); err != nil {
		return domain.FileRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p]
	if !ok {
		return domain.FileRecord{}, remote.Classify("stat", p, domain.ErrNotFound)
	}
	return s.record(p, e), nil
}

func (s *FakeServer) ListFolder(ctx context.Context, remotePath string) (domain.FileRecord, []domain.FileRecord, error) {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "list", p); err != nil {
		return domain.FileRecord{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p]
	if !ok {
		return domain.FileRecord{}, nil, remote.Classify("list", p, domain.ErrNotFound)
	}
	if !e.folder {
		return domain.FileRecord{}, nil, remote.Classify("list", p, domain.ErrNotDirectory)
	}

	var children []domain.FileRecord
	for q, c := range s.entries {
		if q != p && domain.ParentPath(q) == p {
			children = append(children, s.record(q, c))
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].RemotePath < children[j].RemotePath })
	return s.record(p, e), children, nil
}

func (s *FakeServer) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "download", p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p]
	if !ok || e.folder {
		return nil, remote.Classify("download", p, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), e.data...))), nil
}

func (s *FakeServer) Upload(ctx context.Context, remotePath string, r io.Reader) error {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "upload", p); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return remote.Classify("upload", p, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(p, data)
	return nil
}

func (s *FakeServer) MkdirAll(ctx context.Context, remotePath string) error {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "mkdir", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(p)
	return nil
}

func (s *FakeServer) Move(ctx context.Context, from, to string, overwrite bool) error {
	from, to = domain.CleanPath(from), domain.CleanPath(to)
	if err := s.begin(ctx, "move", from); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[from]; !ok {
		return remote.Classify("move", from, domain.ErrNotFound)
	}
	if _, ok := s.entries[to]; ok && !overwrite {
		return remote.Classify("move", to, domain.ErrAlreadyExists)
	}
	s.mkdirAll(domain.ParentPath(to))
	moved := make(map[string]*entry)
	for q, e := range s.entries {
		if q == from || domain.IsDescendant(q, from) {
			moved[to+strings.TrimPrefix(q, from)] = e
			delete(s.entries, q)
		}
	}
	for q, e := range moved {
		s.entries[q] = e
	}
	s.touchAncestors(from)
	s.touchAncestors(to)
	return nil
}

func (s *FakeServer) Remove(ctx context.Context, remotePath string) error {
	p := domain.CleanPath(remotePath)
	if err := s.begin(ctx, "remove", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[p]; !ok {
		return remote.Classify("remove", p, domain.ErrNotFound)
	}
	s.remove(p)
	return nil
}
