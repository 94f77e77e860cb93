package configfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
)

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()

	want := Default()
	if err := Save(root, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(root) {
		t.Fatal("Exists = false after Save")
	}

	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Backend != storage.BackendSQLite || !got.Mirror {
		t.Errorf("Load = %+v", got)
	}
	if got.DatabasePath(root) != filepath.Join(root, DirName, "issues.db") {
		t.Errorf("DatabasePath = %q", got.DatabasePath(root))
	}
}

func TestLoadMissingWorkspace(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("want ErrNoWorkspace, got %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(root), []byte(`{"backend": "dolt"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(root); !errors.Is(err, storage.ErrUnknownBackend) {
		t.Fatalf("want ErrUnknownBackend, got %v", err)
	}
}

func TestFindRootWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := Save(root, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot: %v", err)
	}
	// Resolve symlinks so macOS /tmp vs /private/tmp compares equal.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("FindRoot = %q, want %q", got, root)
	}
}

func TestFindRootWithoutWorkspace(t *testing.T) {
	if _, err := FindRoot(t.TempDir()); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("want ErrNoWorkspace, got %v", err)
	}
}

func TestPathResolution(t *testing.T) {
	m := &Metadata{Database: "/absolute/issues.db", IssuesDir: "relative/issues"}
	if got := m.DatabasePath("/ws"); got != "/absolute/issues.db" {
		t.Errorf("absolute path must pass through, got %q", got)
	}
	if got := m.IssuesPath("/ws"); got != filepath.Join("/ws", "relative/issues") {
		t.Errorf("relative path must resolve against root, got %q", got)
	}
	if got := (&Metadata{}).FailureLogPath("/ws"); got != "" {
		t.Errorf("empty path must stay empty, got %q", got)
	}
}
