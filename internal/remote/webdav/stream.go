package webdav

import (
	"context"
	"crypto/tls"
	"io"
	"sync"
)

// ctxReader fails reads once ctx is done, which aborts an upload body.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// ctxReadCloser closes the download body when ctx is done.
type ctxReadCloser struct {
	ctx  context.Context
	rc   io.ReadCloser
	once sync.Once
	stop func() bool
}

func newCtxReadCloser(ctx context.Context, rc io.ReadCloser) *ctxReadCloser {
	c := &ctxReadCloser{ctx: ctx, rc: rc}
	c.stop = context.AfterFunc(ctx, func() { c.close() })
	return c
}

func (c *ctxReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if err != nil && c.ctx.Err() != nil {
		return n, c.ctx.Err()
	}
	return n, err
}

func (c *ctxReadCloser) Close() error {
	c.stop()
	return c.close()
}

func (c *ctxReadCloser) close() (err error) {
	c.once.Do(func() { err = c.rc.Close() })
	return err
}

func insecureTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
