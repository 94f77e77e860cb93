// Package configfile manages the workspace metadata file. A workspace
// is any directory holding a .bea/ dir; the metadata pins the cache
// backend and its file locations so every command in that workspace
// agrees on them.
package configfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
)

// Workspace layout
const (
	DirName  = ".bea"
	FileName = "metadata.json"
)

// ErrNoWorkspace is returned when no workspace is found walking up from
// the start directory.
var ErrNoWorkspace = errors.New("no workspace found (run 'bea init' first)")

// Metadata is the persisted workspace configuration. Paths are relative
// to the workspace root.
type Metadata struct {
	Backend    storage.Backend `json:"backend"`
	Database   string          `json:"database,omitempty"`
	IssuesDir  string          `json:"issues_dir,omitempty"`
	FailureLog string          `json:"failure_log,omitempty"`
	Mirror     bool            `json:"mirror,omitempty"`
}

// Default is the metadata written by init: a mirrored sqlite cache.
func Default() *Metadata {
	return &Metadata{
		Backend:    storage.BackendSQLite,
		Database:   filepath.Join(DirName, "issues.db"),
		IssuesDir:  filepath.Join(DirName, "issues"),
		FailureLog: filepath.Join(DirName, "failures.log"),
		Mirror:     true,
	}
}

// Path returns the metadata file path for a workspace root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Exists reports whether root holds a workspace.
func Exists(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// Load reads and validates the metadata of the workspace at root.
func Load(root string) (*Metadata, error) {
	data, err := os.ReadFile(Path(root))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoWorkspace
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", Path(root), err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", Path(root), err)
	}
	if m.Backend != "" && !m.Backend.IsValid() {
		return nil, fmt.Errorf("%s: %w: %q", Path(root), storage.ErrUnknownBackend, m.Backend)
	}
	return &m, nil
}

// Save writes the metadata, creating the workspace directory if needed.
func Save(root string, m *Metadata) error {
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o755); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(root), append(data, '\n'), 0o644)
}

// FindRoot walks up from start looking for a workspace, like version
// control tools find their repository root.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// DatabasePath resolves the database path against the workspace root.
func (m *Metadata) DatabasePath(root string) string {
	return resolve(root, m.Database)
}

// IssuesPath resolves the issues directory against the workspace root.
func (m *Metadata) IssuesPath(root string) string {
	return resolve(root, m.IssuesDir)
}

// FailureLogPath resolves the failure log against the workspace root.
func (m *Metadata) FailureLogPath(root string) string {
	return resolve(root, m.FailureLog)
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
