// Package local keeps the downloaded copies of one account inside its save
// directory, laid out like the remote tree.
package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Ning0612/ocsync/internal/core/checksum"
	"github.com/Ning0612/ocsync/internal/domain"
)

// Storage is the account save directory.
type Storage struct {
	root string
	calc *checksum.DefaultCalculator
}

// New opens the save directory at root, creating it when missing.
func New(root string) (*Storage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0o700); err != nil {
		return nil, mapError(err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	return &Storage{root: absRoot, calc: checksum.NewDefaultCalculator()}, nil
}

// Root returns the absolute save directory.
func (s *Storage) Root() string {
	return s.root
}

// Path returns the default location of the local copy of remotePath.
func (s *Storage) Path(remotePath string) (string, error) {
	rel := strings.TrimPrefix(domain.CleanPath(remotePath), "/")
	if rel == "" {
		return s.root, nil
	}
	return s.resolve(filepath.FromSlash(rel))
}

// RemotePath maps a path inside the save dir back onto the remote tree.
func (s *Storage) RemotePath(absPath string) (string, error) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrOutsideRoot
	}
	if rel == "." {
		return domain.RootPath, nil
	}
	return domain.CleanPath(filepath.ToSlash(rel)), nil
}

// Contains reports whether absPath lies inside the save dir.
func (s *Storage) Contains(absPath string) bool {
	_, err := s.RemotePath(absPath)
	return err == nil
}

func (s *Storage) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.Clean(rel))
	if !s.Contains(full) {
		return "", domain.ErrOutsideRoot
	}
	return full, nil
}

// Write stores r as the local copy of remotePath and returns its absolute
// path. The copy appears atomically; a cancelled ctx leaves nothing behind.
func (s *Storage) Write(ctx context.Context, remotePath string, r io.Reader) (string, error) {
	fullPath, err := s.Path(remotePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		return "", mapError(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".*.part")
	if err != nil {
		return "", mapError(err)
	}
	tempPath := tmp.Name()

	_, copyErr := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tempPath)
		return "", copyErr
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return "", closeErr
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return "", mapError(err)
	}
	return fullPath, nil
}

// Adopt places src as the local copy of remotePath. With move the source
// is renamed into place (copied and removed across devices); otherwise it
// is copied. Adopting a file onto itself is a no-op.
func (s *Storage) Adopt(ctx context.Context, src, remotePath string, move bool) (string, error) {
	dst, err := s.Path(remotePath)
	if err != nil {
		return "", err
	}
	if filepath.Clean(src) == dst {
		return dst, nil
	}

	if move {
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return "", mapError(err)
		}
		err := os.Rename(src, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return "", mapError(err)
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return "", mapError(err)
	}
	defer f.Close()
	if _, err := s.Write(ctx, remotePath, f); err != nil {
		return "", err
	}
	if move {
		f.Close()
		if err := os.Remove(src); err != nil {
			return "", mapError(err)
		}
	}
	return dst, nil
}

// Rename moves the local copy of from, file or folder, to the location of
// to. It returns the new path and false when there was nothing to move.
func (s *Storage) Rename(from, to string) (string, bool, error) {
	src, err := s.Path(from)
	if err != nil {
		return "", false, err
	}
	dst, err := s.Path(to)
	if err != nil {
		return "", false, err
	}
	if src == s.root || dst == s.root {
		return "", false, domain.ErrPermissionDenied
	}
	if _, err := os.Lstat(src); os.IsNotExist(err) {
		return dst, false, nil
	}
	if _, err := os.Lstat(dst); err == nil {
		return "", false, domain.ErrAlreadyExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return "", false, mapError(err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", false, mapError(err)
	}
	return dst, true, nil
}

// Open opens a local copy for reading.
func (s *Storage) Open(absPath string) (*os.File, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, mapError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError(err)
	}
	if info.IsDir() {
		f.Close()
		return nil, domain.ErrNotFile
	}
	return f, nil
}

// ModTime returns the modification time of absPath in unix milliseconds.
func (s *Storage) ModTime(absPath string) (int64, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, mapError(err)
	}
	return info.ModTime().UnixMilli(), nil
}

// Exists reports whether absPath exists.
func (s *Storage) Exists(absPath string) bool {
	if absPath == "" {
		return false
	}
	_, err := os.Stat(absPath)
	return err == nil
}

// Checksum hashes the file at absPath with SHA-256.
func (s *Storage) Checksum(ctx context.Context, absPath string) (string, error) {
	f, err := s.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.calc.Calculate(ctx, f, checksum.SHA256)
}

// Remove deletes a local copy. Missing files are not an error.
func (s *Storage) Remove(absPath string) error {
	if absPath == "" {
		return nil
	}
	if !s.Contains(absPath) {
		return domain.ErrOutsideRoot
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return mapError(err)
	}
	return nil
}

// RemoveTree deletes the local folder of remotePath with everything in it.
func (s *Storage) RemoveTree(remotePath string) error {
	dir, err := s.Path(remotePath)
	if err != nil {
		return err
	}
	if dir == s.root {
		return domain.ErrPermissionDenied
	}
	return mapError(os.RemoveAll(dir))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err):
		return domain.ErrNotFound
	case os.IsPermission(err):
		return domain.ErrPermissionDenied
	case os.IsExist(err):
		return domain.ErrAlreadyExists
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.ENOTDIR) {
		return domain.ErrNotDirectory
	}
	return err
}
