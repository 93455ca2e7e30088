// Package webdav implements remote.Server on top of gowebdav.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
	"golang.org/x/oauth2"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/remote"
)

// Options configures a Client.
type Options struct {
	ServerURL string
	Username  string
	Password  string
	// Tokens, when set, authorizes with bearer tokens instead of basic auth.
	Tokens oauth2.TokenSource
	// Trust verifies server certificates; nil means system roots only.
	Trust              *remote.TrustStore
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Client talks WebDAV to one ownCloud account.
type Client struct {
	dav *gowebdav.Client
	log logger.Logger

	// PROPFIND for file ids, see fileid.go
	http       *http.Client
	root       string
	rootPath   string
	user, pass string
}

var _ remote.Server = (*Client)(nil)

// DAVRoot returns the WebDAV endpoint of an ownCloud server URL.
func DAVRoot(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	if strings.Contains(u, "/remote.php/") {
		return u
	}
	return u + "/remote.php/webdav"
}

// New builds a client; no request is made until the first call.
func New(opts Options) *Client {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConnsPerHost: 4,
	}
	switch {
	case opts.InsecureSkipVerify:
		base.TLSClientConfig = insecureTLS()
	case opts.Trust != nil:
		base.TLSClientConfig = opts.Trust.TLSConfig()
	}

	var transport http.RoundTripper = base
	user, pass := opts.Username, opts.Password
	if opts.Tokens != nil {
		transport = remote.BearerTransport(opts.Tokens, base)
		user, pass = "", ""
	}

	root := DAVRoot(opts.ServerURL)
	dav := gowebdav.NewClient(root, user, pass)
	dav.SetTransport(transport)
	if opts.Timeout > 0 {
		dav.SetTimeout(opts.Timeout)
	}

	rootPath := ""
	if u, err := url.Parse(root); err == nil {
		rootPath = strings.TrimRight(u.Path, "/")
	}
	return &Client{
		dav:      dav,
		log:      logger.With("component", "webdav"),
		http:     &http.Client{Transport: transport, Timeout: opts.Timeout},
		root:     root,
		rootPath: rootPath,
		user:     user,
		pass:     pass,
	}
}

// Stat returns the properties of one path.
func (c *Client) Stat(ctx context.Context, remotePath string) (domain.FileRecord, error) {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return domain.FileRecord{}, remote.Classify("stat", p, err)
	}
	fi, err := c.dav.Stat(davPath(p, false))
	if err != nil {
		return domain.FileRecord{}, classify("stat", p, err)
	}
	f := toRecord(p, fi)
	c.withIDs(ctx, p, 0, &f)
	return f, nil
}

// ListFolder returns the folder and its direct children.
func (c *Client) ListFolder(ctx context.Context, remotePath string) (domain.FileRecord, []domain.FileRecord, error) {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return domain.FileRecord{}, nil, remote.Classify("list", p, err)
	}
	fi, err := c.dav.Stat(davPath(p, false))
	if err != nil {
		return domain.FileRecord{}, nil, classify("list", p, err)
	}
	folder := toRecord(p, fi)
	if !folder.IsFolder {
		return domain.FileRecord{}, nil, remote.Classify("list", p, domain.ErrNotDirectory)
	}
	if err := ctx.Err(); err != nil {
		return domain.FileRecord{}, nil, remote.Classify("list", p, err)
	}

	infos, err := c.dav.ReadDir(davPath(p, true))
	if err != nil {
		return domain.FileRecord{}, nil, classify("list", p, err)
	}

	children := make([]domain.FileRecord, 0, len(infos))
	for _, fi := range infos {
		children = append(children, toRecord(path.Join(p, fi.Name()), fi))
	}
	recs := []*domain.FileRecord{&folder}
	for i := range children {
		recs = append(recs, &children[i])
	}
	c.withIDs(ctx, p, 1, recs...)
	c.log.Debug("listed folder", "path", p, "children", len(children))
	return folder, children, nil
}

// Download streams remotePath; closing the reader or cancelling ctx ends it.
func (c *Client) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return nil, remote.Classify("download", p, err)
	}
	rc, err := c.dav.ReadStream(davPath(p, false))
	if err != nil {
		return nil, classify("download", p, err)
	}
	return newCtxReadCloser(ctx, rc), nil
}

// Upload writes r to remotePath. Missing parents are created by the server
// round trip gowebdav performs before the PUT.
func (c *Client) Upload(ctx context.Context, remotePath string, r io.Reader) error {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return remote.Classify("upload", p, err)
	}
	if err := c.dav.WriteStream(davPath(p, false), &ctxReader{ctx: ctx, r: r}, 0o644); err != nil {
		if ctx.Err() != nil {
			return remote.Classify("upload", p, ctx.Err())
		}
		return classify("upload", p, err)
	}
	return nil
}

// MkdirAll creates remotePath and its parents.
func (c *Client) MkdirAll(ctx context.Context, remotePath string) error {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return remote.Classify("mkdir", p, err)
	}
	if err := c.dav.MkdirAll(davPath(p, true), 0o755); err != nil {
		return classify("mkdir", p, err)
	}
	return nil
}

// Move renames from to to on the server.
func (c *Client) Move(ctx context.Context, from, to string, overwrite bool) error {
	from, to = domain.CleanPath(from), domain.CleanPath(to)
	if err := ctx.Err(); err != nil {
		return remote.Classify("move", from, err)
	}
	if err := c.dav.Rename(davPath(from, false), davPath(to, false), overwrite); err != nil {
		err = classify("move", from, err)
		if !overwrite && remote.CodeFor(err) == domain.CodeSyncConflict {
			// 412: the target exists
			return remote.Classify("move", to, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, to))
		}
		return err
	}
	return nil
}

// Remove deletes remotePath (recursively for folders).
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	p := domain.CleanPath(remotePath)
	if err := ctx.Err(); err != nil {
		return remote.Classify("remove", p, err)
	}
	if err := c.dav.Remove(davPath(p, false)); err != nil {
		return classify("remove", p, err)
	}
	return nil
}

func davPath(p string, dir bool) string {
	if dir && p != "/" {
		return p + "/"
	}
	return p
}

type etagger interface {
	ETag() string
}

type contentTyper interface {
	ContentType() string
}

func toRecord(p string, fi os.FileInfo) domain.FileRecord {
	f := domain.FileRecord{
		RemotePath: domain.CleanPath(p),
		IsFolder:   fi.IsDir(),
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime().UnixMilli(),
	}
	if e, ok := fi.(etagger); ok {
		f.ETag = normalizeETag(e.ETag())
	}
	if ct, ok := fi.(contentTyper); ok {
		f.MimeType = ct.ContentType()
	}
	if f.IsFolder {
		f.Size = 0
		f.MimeType = "httpd/unix-directory"
	}
	return f
}

// normalizeETag strips quotes and the weak prefix.
func normalizeETag(etag string) string {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	return strings.Trim(etag, `"`)
}

// statusError carries a WebDAV status into remote.Classify.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.status }

func classify(op, p string, err error) error {
	var se gowebdav.StatusError
	if errors.As(err, &se) {
		err = &statusError{status: se.Status, err: err}
	}
	return remote.Classify(op, p, err)
}
