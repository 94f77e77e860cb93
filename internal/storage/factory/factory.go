// Package factory constructs cache stores from configuration so callers
// never import backend packages directly.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage/flatfile"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage/memory"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage/sqlite"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend   storage.Backend
	Database  string // sqlite file path
	IssuesDir string // flat-file cache directory

	// Mirror pairs the sqlite primary with a flat-file secondary so
	// both stay in lockstep. Only meaningful for the sqlite backend.
	Mirror bool
}

// New builds the store described by cfg.
func New(cfg Config, log *slog.Logger) (storage.Store, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Backend {
	case storage.BackendSQLite:
		if cfg.Database == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		db, err := sqlite.New(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if !cfg.Mirror {
			return db, nil
		}
		if cfg.IssuesDir == "" {
			_ = db.Close()
			return nil, fmt.Errorf("mirrored sqlite backend requires an issues directory")
		}
		files, err := flatfile.New(cfg.IssuesDir, log)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return storage.NewMirror(db, files, log), nil

	case storage.BackendFile:
		if cfg.IssuesDir == "" {
			return nil, fmt.Errorf("file backend requires an issues directory")
		}
		return flatfile.New(cfg.IssuesDir, log)

	case storage.BackendMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Backend)
	}
}

// Detect probes the workspace and picks a backend: an existing, readable
// database wins, then an existing issues directory. Used when the
// metadata file does not pin a backend.
func Detect(ctx context.Context, cfg Config, log *slog.Logger) (storage.Backend, error) {
	if cfg.Database != "" {
		if _, err := os.Stat(cfg.Database); err == nil {
			db, err := sqlite.New(cfg.Database, log)
			if err == nil {
				ready := db.Ready(ctx)
				_ = db.Close()
				if ready {
					return storage.BackendSQLite, nil
				}
			}
		}
	}
	if cfg.IssuesDir != "" {
		if info, err := os.Stat(cfg.IssuesDir); err == nil && info.IsDir() {
			return storage.BackendFile, nil
		}
	}
	return "", fmt.Errorf("no usable cache found (database %q, issues dir %q)", cfg.Database, cfg.IssuesDir)
}
