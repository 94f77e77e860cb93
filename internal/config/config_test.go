package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if got := Workers(); got != 4 {
		t.Errorf("Workers = %d, want 4", got)
	}
	if got := Mode(); got != "full" {
		t.Errorf("Mode = %q, want full", got)
	}
	if got := HierarchyName(); got != "management" {
		t.Errorf("HierarchyName = %q, want management", got)
	}
	if got := JiraTimeout().Seconds(); got != 60 {
		t.Errorf("JiraTimeout = %vs, want 60s", got)
	}
	if got := LogLevel(); got != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	dir := t.TempDir()
	content := "jira:\n  url: https://jira.example.com\ncrawl:\n  workers: 8\n  mode: delta\nlog:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if err := Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := JiraURL(); got != "https://jira.example.com" {
		t.Errorf("JiraURL = %q", got)
	}
	if got := Workers(); got != 8 {
		t.Errorf("Workers = %d, want 8", got)
	}
	if got := Mode(); got != "delta" {
		t.Errorf("Mode = %q, want delta", got)
	}
	if got := LogLevel(); got != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if err := Load(t.TempDir()); err != nil {
		t.Fatalf("Load without config.yaml must succeed, got %v", err)
	}
	if got := Workers(); got != 4 {
		t.Errorf("Workers = %d, want the default 4", got)
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("BEA_JIRA_TOKEN", "secret-from-env")
	t.Setenv("BEA_CRAWL_WORKERS", "2")

	if got := JiraToken(); got != "secret-from-env" {
		t.Errorf("JiraToken = %q", got)
	}
	if got := Workers(); got != 2 {
		t.Errorf("Workers = %d, want 2", got)
	}
}

func TestSelectHierarchyBuiltins(t *testing.T) {
	h, err := SelectHierarchy("management")
	if err != nil {
		t.Fatalf("SelectHierarchy(management): %v", err)
	}
	if h.IsRoot("Epic") {
		t.Error("management hierarchy must not treat Epic as a root")
	}

	h, err = SelectHierarchy("full")
	if err != nil {
		t.Fatalf("SelectHierarchy(full): %v", err)
	}
	if !h.Allows("Epic", types.RelationIssueInEpic) {
		t.Error("full hierarchy must descend from epics")
	}
}

func TestLoadHierarchyFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hierarchy.yaml")
	content := "hierarchy:\n  Business Epic: [realized_by, child]\n  Epic: [issue_in_epic]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing hierarchy: %v", err)
	}

	h, err := SelectHierarchy(path)
	if err != nil {
		t.Fatalf("SelectHierarchy(path): %v", err)
	}
	if !h.Allows("Business Epic", types.RelationChild) || !h.Allows("Epic", types.RelationIssueInEpic) {
		t.Errorf("loaded hierarchy = %v", h)
	}
}

func TestLoadHierarchyRejectsUnknownKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hierarchy.yaml")
	content := "hierarchy:\n  Business Epic: [realizes]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing hierarchy: %v", err)
	}

	if _, err := LoadHierarchy(path); err == nil {
		t.Error("unknown relation kind must be rejected")
	}
}
