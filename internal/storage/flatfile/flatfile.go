// Package flatfile is the file-per-issue cache: one pretty-printed JSON
// document per key inside a single directory. The file's modification
// time doubles as the local last-write timestamp, so records survive
// inspection and hand-editing without a side index.
package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// lockFile guards writers from other processes sharing the directory.
const lockFile = ".cache.lock"

// Store is the flat-file cache rooted at one directory.
type Store struct {
	dir  string
	lock *flock.Flock
	log  *slog.Logger
}

// New creates the cache directory if needed and returns the store.
func New(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flatfile: creating cache directory: %w", err)
	}
	return &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
		log:  log,
	}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads {key}.json. The file's mtime is the last-write time. A file
// that no longer decodes reads as absent so the caller refetches it.
func (s *Store) Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error) {
	if err := types.ValidateKey(key); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("flatfile: %w", err)
	}

	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("flatfile: reading %s: %w", key, err)
	}

	var issue types.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		s.log.Warn("corrupt cache file, treating as absent", "key", key, "error", err)
		return nil, time.Time{}, false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("flatfile: stat %s: %w", key, err)
	}
	return &issue, info.ModTime(), true, nil
}

// BatchModified stats each key's file. Missing files are simply absent.
func (s *Store) BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		info, err := os.Stat(s.path(key))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("flatfile: stat %s: %w", key, err)
		}
		out[key] = info.ModTime()
	}
	return out, nil
}

// Upsert writes the record atomically: encode to a temp file in the same
// directory, then rename over the target. A directory-level file lock
// serializes writers across processes.
func (s *Store) Upsert(ctx context.Context, issue *types.Issue) (time.Time, error) {
	if err := types.ValidateKey(issue.Key); err != nil {
		return time.Time{}, fmt.Errorf("flatfile: %w", err)
	}

	data, err := json.MarshalIndent(issue, "", "  ")
	if err != nil {
		return time.Time{}, fmt.Errorf("flatfile: encoding %s: %w", issue.Key, err)
	}

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return time.Time{}, fmt.Errorf("flatfile: acquiring write lock: %w", err)
	}
	if !locked {
		return time.Time{}, errors.New("flatfile: write lock unavailable")
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, issue.Key+".*.tmp")
	if err != nil {
		return time.Time{}, fmt.Errorf("flatfile: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("flatfile: writing %s: %w", issue.Key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("flatfile: writing %s: %w", issue.Key, err)
	}

	path := s.path(issue.Key)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("flatfile: replacing %s: %w", issue.Key, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("flatfile: stat %s: %w", issue.Key, err)
	}
	return info.ModTime(), nil
}

// Ready reports whether the cache directory is accessible.
func (s *Store) Ready(ctx context.Context) bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// Keys lists all cached issue keys, in directory order.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("flatfile: listing cache directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		key := name[:len(name)-len(".json")]
		if types.ValidateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close releases the write lock if held.
func (s *Store) Close() error {
	return s.lock.Unlock()
}
