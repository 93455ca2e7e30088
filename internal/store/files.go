package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ning0612/ocsync/internal/domain"
)

const fileColumns = `id, account, remote_path, parent_id, remote_id, storage_path, etag, tree_etag,
	etag_in_conflict, is_folder, kept_in_sync, size, mime_type, checksum, modified_at,
	last_sync_properties, last_sync_data, local_modified`

// Store is the FileRecord store of one account.
type Store struct {
	db      *sql.DB
	account string
}

var (
	_ domain.FileStore = (*Store)(nil)
	_ domain.UploadLog = (*Store)(nil)
)

// New returns the store of account inside db.
func New(db *sql.DB, account string) *Store {
	return &Store{db: db, account: account}
}

// Account returns the account this store serves.
func (s *Store) Account() string {
	return s.account
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.FileRecord, error) {
	var f domain.FileRecord
	err := row.Scan(&f.ID, &f.AccountName, &f.RemotePath, &f.ParentID, &f.RemoteID, &f.StoragePath,
		&f.ETag, &f.TreeETag, &f.ETagInConflict, &f.IsFolder, &f.KeptInSync, &f.Size, &f.MimeType,
		&f.Checksum, &f.ModifiedAt, &f.LastSyncForProperties, &f.LastSyncForData, &f.LocalModified)
	return f, err
}

func (s *Store) getOne(ctx context.Context, q DBTX, where string, args ...any) (*domain.FileRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE account = ? AND `+where,
		append([]any{s.account}, args...)...)
	f, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) getMany(ctx context.Context, q DBTX, where string, args ...any) ([]domain.FileRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE account = ? AND `+where,
		append([]any{s.account}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FileRecord
	for rows.Next() {
		f, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetByPath returns the record at remotePath, or nil.
func (s *Store) GetByPath(ctx context.Context, remotePath string) (*domain.FileRecord, error) {
	f, err := s.getOne(ctx, s.db, `remote_path = ?`, domain.CleanPath(remotePath))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", remotePath, err)
	}
	return f, nil
}

// GetByID returns the record with id, or nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.FileRecord, error) {
	f, err := s.getOne(ctx, s.db, `id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get #%d: %w", id, err)
	}
	return f, nil
}

// GetByStoragePath returns the record whose local copy is at p, or nil.
func (s *Store) GetByStoragePath(ctx context.Context, p string) (*domain.FileRecord, error) {
	if p == "" {
		return nil, nil
	}
	f, err := s.getOne(ctx, s.db, `storage_path = ?`, p)
	if err != nil {
		return nil, fmt.Errorf("get local %s: %w", p, err)
	}
	return f, nil
}

// GetFolderContents returns the direct children of folder ordered by path.
func (s *Store) GetFolderContents(ctx context.Context, folder domain.FileRecord) ([]domain.FileRecord, error) {
	id := folder.ID
	if id == 0 {
		f, err := s.GetByPath(ctx, folder.RemotePath)
		if err != nil || f == nil {
			return nil, err
		}
		id = f.ID
	}
	children, err := s.getMany(ctx, s.db, `parent_id = ? AND id <> ? ORDER BY remote_path`, id, id)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder.RemotePath, err)
	}
	return children, nil
}

// KeptInSync returns every kept-in-sync regular file.
func (s *Store) KeptInSync(ctx context.Context) ([]domain.FileRecord, error) {
	files, err := s.getMany(ctx, s.db, `kept_in_sync = 1 AND is_folder = 0 ORDER BY remote_path`)
	if err != nil {
		return nil, fmt.Errorf("list kept in sync: %w", err)
	}
	return files, nil
}

// Conflicts returns every file carrying a conflict marker.
func (s *Store) Conflicts(ctx context.Context) ([]domain.FileRecord, error) {
	files, err := s.getMany(ctx, s.db, `etag_in_conflict <> '' ORDER BY remote_path`)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return files, nil
}

// EnsureRoot creates the root folder record on first use.
func (s *Store) EnsureRoot(ctx context.Context) (*domain.FileRecord, error) {
	root, err := s.GetByPath(ctx, domain.RootPath)
	if err != nil || root != nil {
		return root, err
	}
	root = &domain.FileRecord{RemotePath: domain.RootPath, IsFolder: true, MimeType: "httpd/unix-directory"}
	if err := s.Upsert(ctx, root); err != nil {
		return nil, err
	}
	return root, nil
}

// Upsert inserts f or updates it in place; f.ID is set on return.
func (s *Store) Upsert(ctx context.Context, f *domain.FileRecord) error {
	err := withTx(ctx, s.db, func(tx DBTX) error {
		return s.upsert(ctx, tx, f)
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", f.RemotePath, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, q DBTX, f *domain.FileRecord) error {
	f.AccountName = s.account
	f.RemotePath = domain.CleanPath(f.RemotePath)

	if f.ID != 0 {
		res, err := q.ExecContext(ctx, `UPDATE files SET remote_path = ?, parent_id = ?, remote_id = ?,
			storage_path = ?, etag = ?, tree_etag = ?, etag_in_conflict = ?, is_folder = ?, kept_in_sync = ?,
			size = ?, mime_type = ?, checksum = ?, modified_at = ?, last_sync_properties = ?,
			last_sync_data = ?, local_modified = ?
			WHERE id = ? AND account = ?`,
			f.RemotePath, f.ParentID, f.RemoteID, f.StoragePath, f.ETag, f.TreeETag, f.ETagInConflict,
			f.IsFolder, f.KeptInSync, f.Size, f.MimeType, f.Checksum, f.ModifiedAt, f.LastSyncForProperties,
			f.LastSyncForData, f.LocalModified, f.ID, s.account)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return nil
		}
		// the row vanished under us; insert it again by path
	}

	row := q.QueryRowContext(ctx, `INSERT INTO files (account, remote_path, parent_id, remote_id,
			storage_path, etag, tree_etag, etag_in_conflict, is_folder, kept_in_sync, size, mime_type,
			checksum, modified_at, last_sync_properties, last_sync_data, local_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, remote_path) DO UPDATE SET
			parent_id = excluded.parent_id, remote_id = excluded.remote_id,
			storage_path = excluded.storage_path, etag = excluded.etag, tree_etag = excluded.tree_etag,
			etag_in_conflict = excluded.etag_in_conflict, is_folder = excluded.is_folder,
			kept_in_sync = excluded.kept_in_sync, size = excluded.size, mime_type = excluded.mime_type,
			checksum = excluded.checksum, modified_at = excluded.modified_at,
			last_sync_properties = excluded.last_sync_properties,
			last_sync_data = excluded.last_sync_data, local_modified = excluded.local_modified
		RETURNING id`,
		s.account, f.RemotePath, f.ParentID, f.RemoteID, f.StoragePath, f.ETag, f.TreeETag,
		f.ETagInConflict, f.IsFolder, f.KeptInSync, f.Size, f.MimeType, f.Checksum, f.ModifiedAt,
		f.LastSyncForProperties, f.LastSyncForData, f.LocalModified)
	return row.Scan(&f.ID)
}

// Delete removes the record with id and, for folders, everything below it.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := withTx(ctx, s.db, func(tx DBTX) error {
		f, err := s.getOne(ctx, tx, `id = ?`, id)
		if err != nil || f == nil {
			return err
		}
		return s.deleteTree(ctx, tx, *f)
	})
	if err != nil {
		return fmt.Errorf("delete #%d: %w", id, err)
	}
	return nil
}

func (s *Store) deleteTree(ctx context.Context, q DBTX, f domain.FileRecord) error {
	if f.ID != 0 {
		if _, err := q.ExecContext(ctx, `DELETE FROM files WHERE account = ? AND id = ?`, s.account, f.ID); err != nil {
			return err
		}
	} else if _, err := q.ExecContext(ctx, `DELETE FROM files WHERE account = ? AND remote_path = ?`,
		s.account, domain.CleanPath(f.RemotePath)); err != nil {
		return err
	}

	if !f.IsFolder {
		return nil
	}
	prefix := domain.CleanPath(f.RemotePath) + "/"
	if prefix == "//" {
		prefix = "/"
	}
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE account = ? AND substr(remote_path, 1, length(?)) = ?`,
		s.account, prefix, prefix)
	return err
}

// SaveFolder writes folder, its children and drops removed in one transaction.
func (s *Store) SaveFolder(ctx context.Context, folder *domain.FileRecord, children []domain.FileRecord, removed []domain.FileRecord) error {
	err := withTx(ctx, s.db, func(tx DBTX) error {
		for _, r := range removed {
			if err := s.deleteTree(ctx, tx, r); err != nil {
				return err
			}
		}
		if err := s.upsert(ctx, tx, folder); err != nil {
			return err
		}
		for i := range children {
			children[i].ParentID = folder.ID
			if err := s.upsert(ctx, tx, &children[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save folder %s: %w", folder.RemotePath, err)
	}
	return nil
}

// SaveConflict sets or, with an empty etag, clears the conflict marker.
func (s *Store) SaveConflict(ctx context.Context, id int64, etagInConflict string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET etag_in_conflict = ? WHERE account = ? AND id = ?`,
		etagInConflict, s.account, id)
	if err != nil {
		return fmt.Errorf("save conflict #%d: %w", id, err)
	}
	return nil
}

// RenameTree moves the record at from, and everything below it, to to.
// Records already at to are dropped. With a non-empty storageFrom the local
// paths under it are moved to storageTo as well.
func (s *Store) RenameTree(ctx context.Context, from, to, storageFrom, storageTo string) error {
	from, to = domain.CleanPath(from), domain.CleanPath(to)
	if from == domain.RootPath || to == domain.RootPath || domain.IsDescendant(to, from) {
		return fmt.Errorf("rename %s to %s: %w", from, to, domain.ErrPermissionDenied)
	}

	err := withTx(ctx, s.db, func(tx DBTX) error {
		if err := s.deleteTree(ctx, tx, domain.FileRecord{RemotePath: to, IsFolder: true}); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE files SET remote_path = ? || substr(remote_path, length(?) + 1)
			WHERE account = ? AND (remote_path = ? OR substr(remote_path, 1, length(?)) = ?)`,
			to, from, s.account, from, from+"/", from+"/")
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}

		if storageFrom == "" {
			return nil
		}
		sep := storageFrom + string(filepath.Separator)
		_, err = tx.ExecContext(ctx, `UPDATE files SET storage_path = ? || substr(storage_path, length(?) + 1)
			WHERE account = ? AND (storage_path = ? OR substr(storage_path, 1, length(?)) = ?)`,
			storageTo, storageFrom, s.account, storageFrom, sep, sep)
		return err
	})
	if err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

// SetKeptInSync flags a file, or a folder and everything below it.
func (s *Store) SetKeptInSync(ctx context.Context, remotePath string, keep bool) error {
	p := domain.CleanPath(remotePath)
	prefix := p + "/"
	if p == domain.RootPath {
		prefix = "/"
	}
	res, err := s.db.ExecContext(ctx, `UPDATE files SET kept_in_sync = ?
		WHERE account = ? AND (remote_path = ? OR substr(remote_path, 1, length(?)) = ?)`,
		keep, s.account, p, prefix, prefix)
	if err != nil {
		return fmt.Errorf("keep in sync %s: %w", p, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("keep in sync %s: %w", p, domain.ErrNotFound)
	}
	return nil
}

// SaveUploadResult records the outcome of the last upload to remotePath.
func (s *Store) SaveUploadResult(ctx context.Context, remotePath string, result domain.UploadResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO upload_results (account, remote_path, result, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account, remote_path) DO UPDATE SET result = excluded.result, updated_at = excluded.updated_at`,
		s.account, domain.CleanPath(remotePath), string(result), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save upload result %s: %w", remotePath, err)
	}
	return nil
}

// LastUploadResult returns the last recorded outcome, or "" when none.
func (s *Store) LastUploadResult(ctx context.Context, remotePath string) (domain.UploadResult, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM upload_results WHERE account = ? AND remote_path = ?`,
		s.account, domain.CleanPath(remotePath)).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last upload result %s: %w", remotePath, err)
	}
	return domain.UploadResult(result), nil
}
