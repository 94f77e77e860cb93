// Package sqlite is the database-backed cache. Records are stored as
// JSON documents keyed by issue key, with a last-write timestamp column
// (integer epoch seconds) for cheap freshness scans.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// batchChunk bounds IN-clause size well under SQLite's parameter limit.
const batchChunk = 500

const schema = `
CREATE TABLE IF NOT EXISTS issues (
	key TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	file_last_modified_timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issues_modified ON issues(file_last_modified_timestamp);
`

// Store is the SQLite-backed cache.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// New opens (and if needed creates) the database at path and ensures the
// schema exists. Parent directories are created as required.
func New(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrapDBError("open database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, wrapDBError("initialize schema", err)
	}
	return &Store{db: db, path: path, log: log}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Get returns the cached issue and its last-write time. A row whose JSON
// no longer decodes reads as absent so the caller refetches it.
func (s *Store) Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error) {
	var data string
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, file_last_modified_timestamp FROM issues WHERE key = ?`, key,
	).Scan(&data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, wrapDBError("read issue", err)
	}

	var issue types.Issue
	if err := json.Unmarshal([]byte(data), &issue); err != nil {
		s.log.Warn("corrupt cache row, treating as absent", "key", key, "error", err)
		return nil, time.Time{}, false, nil
	}
	return &issue, time.Unix(ts, 0), true, nil
}

// BatchModified returns last-write times for the given keys, chunking
// the IN clause. Unknown keys are absent from the result.
func (s *Store) BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(keys))
	for start := 0; start < len(keys); start += batchChunk {
		end := start + batchChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT key, file_last_modified_timestamp FROM issues WHERE key IN (`+placeholders+`)`,
			args...)
		if err != nil {
			return nil, wrapDBError("batch timestamps", err)
		}
		for rows.Next() {
			var key string
			var ts int64
			if err := rows.Scan(&key, &ts); err != nil {
				rows.Close()
				return nil, wrapDBError("batch timestamps", err)
			}
			out[key] = time.Unix(ts, 0)
		}
		if err := rows.Close(); err != nil {
			return nil, wrapDBError("batch timestamps", err)
		}
		if err := rows.Err(); err != nil {
			return nil, wrapDBError("batch timestamps", err)
		}
	}
	return out, nil
}

// Upsert inserts or replaces the record, stamping it with the current
// time. The column holds epoch seconds, so the returned time is
// truncated to match what a later Get reads back.
func (s *Store) Upsert(ctx context.Context, issue *types.Issue) (time.Time, error) {
	data, err := json.Marshal(issue)
	if err != nil {
		return time.Time{}, fmt.Errorf("encoding issue %s: %w", issue.Key, err)
	}

	now := time.Unix(time.Now().Unix(), 0)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issues (key, data, file_last_modified_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			file_last_modified_timestamp = excluded.file_last_modified_timestamp`,
		issue.Key, string(data), now.Unix())
	if err != nil {
		return time.Time{}, wrapDBError("upsert issue", err)
	}
	return now, nil
}

// Ready probes the database with a trivial query.
func (s *Store) Ready(ctx context.Context) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master LIMIT 1`).Scan(&one)
	return err == nil || errors.Is(err, sql.ErrNoRows)
}

// Count returns the number of cached issues.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`).Scan(&n); err != nil {
		return 0, wrapDBError("count issues", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func wrapDBError(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
