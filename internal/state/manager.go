package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Manager keeps the history of finished sync operations.
type Manager struct {
	db *sql.DB
}

// SyncRecord is one finished operation.
type SyncRecord struct {
	ID         int64
	Account    string
	Operation  string
	RemotePath string
	Code       domain.ResultCode
	StartTime  time.Time
	EndTime    time.Time
	Conflicts  int
	Failures   int
	Error      string
}

// Succeeded reports whether the operation finished with OK.
func (r SyncRecord) Succeeded() bool {
	return r.Code == domain.CodeOK
}

// RecordFromResult builds a history row from an operation result.
func RecordFromResult(account, remotePath string, res domain.Result) SyncRecord {
	rec := SyncRecord{
		Account:    account,
		Operation:  res.Kind.String(),
		RemotePath: remotePath,
		Code:       res.Code,
		StartTime:  res.Started,
		EndTime:    res.Finished,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if res.Folder != nil {
		rec.Conflicts = res.Folder.Conflicts
		rec.Failures = res.Folder.Failures
	}
	return rec
}

// NewManager opens (and creates) the history database at path.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		return nil, errors.New("history database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 單一連線避免 "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *Manager) initSchema() error {
	_, err := m.db.Exec(`
	CREATE TABLE IF NOT EXISTS sync_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		operation TEXT NOT NULL,
		remote_path TEXT NOT NULL,
		code TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		conflicts INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_history_account_time ON sync_history(account, end_time DESC);
	CREATE INDEX IF NOT EXISTS idx_history_path ON sync_history(account, remote_path, end_time DESC);
	`)
	return err
}

// Save records a finished operation.
func (m *Manager) Save(ctx context.Context, rec SyncRecord) error {
	if rec.Account == "" {
		return errors.New("history record needs an account")
	}
	if rec.Code == "" {
		return errors.New("history record needs a result code")
	}
	if rec.EndTime.IsZero() {
		rec.EndTime = time.Now()
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = rec.EndTime
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sync_history (account, operation, remote_path, code, start_time, end_time, conflicts, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Account, rec.Operation, rec.RemotePath, string(rec.Code),
		rec.StartTime.UTC(), rec.EndTime.UTC(), rec.Conflicts, rec.Failures, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save history record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, account, operation, remote_path, code, start_time, end_time, conflicts, failures, error FROM sync_history`

// History returns the newest records of an account.
func (m *Manager) History(ctx context.Context, account string, limit int) ([]SyncRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.query(ctx, selectColumns+` WHERE account = ? ORDER BY end_time DESC, id DESC LIMIT ?`, account, limit)
}

// PathHistory returns the newest records of one remote path.
func (m *Manager) PathHistory(ctx context.Context, account, remotePath string, limit int) ([]SyncRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.query(ctx, selectColumns+` WHERE account = ? AND remote_path = ? ORDER BY end_time DESC, id DESC LIMIT ?`,
		account, remotePath, limit)
}

// LastSuccess returns the newest OK record for a path, or nil.
func (m *Manager) LastSuccess(ctx context.Context, account, remotePath string) (*SyncRecord, error) {
	recs, err := m.query(ctx, selectColumns+` WHERE account = ? AND remote_path = ? AND code = ? ORDER BY end_time DESC, id DESC LIMIT 1`,
		account, remotePath, string(domain.CodeOK))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Prune deletes records that ended before cutoff.
func (m *Manager) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM sync_history WHERE end_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (m *Manager) query(ctx context.Context, q string, args ...any) ([]SyncRecord, error) {
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []SyncRecord
	for rows.Next() {
		var (
			rec  SyncRecord
			code string
		)
		if err := rows.Scan(&rec.ID, &rec.Account, &rec.Operation, &rec.RemotePath, &code,
			&rec.StartTime, &rec.EndTime, &rec.Conflicts, &rec.Failures, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Code = domain.ResultCode(code)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
