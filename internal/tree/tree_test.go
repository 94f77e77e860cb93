package tree

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/RalfNiem/business-epic-analyzer/internal/storage/memory"
	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

func seed(t *testing.T, issues ...*types.Issue) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, i := range issues {
		if _, err := s.Upsert(context.Background(), i); err != nil {
			t.Fatalf("Upsert %s: %v", i.Key, err)
		}
	}
	return s
}

func link(key string, kind types.RelationKind) types.LinkRef {
	return types.LinkRef{Key: key, Relation: kind}
}

func TestBuildSimpleTree(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "BEMABU-1", Type: "Business Epic", Title: "Root", Links: []types.LinkRef{
			link("EPIC-1", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic", Links: []types.LinkRef{
			link("STORY-1", types.RelationIssueInEpic),
			link("STORY-2", types.RelationIssueInEpic),
		}},
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "First"},
		&types.Issue{Key: "STORY-2", Type: "Story", Title: "Second"},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Size() != 4 {
		t.Errorf("Size = %d, want 4", g.Size())
	}
	if got := g.Children("EPIC-1"); len(got) != 2 {
		t.Errorf("Children(EPIC-1) = %v", got)
	}
}

func TestBuildManagementHierarchyStopsAtEpics(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "BEMABU-1", Type: "Business Epic", Title: "Root", Links: []types.LinkRef{
			link("EPIC-1", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic", Links: []types.LinkRef{
			link("STORY-1", types.RelationIssueInEpic),
		}},
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "Story"},
	)

	g, err := NewBuilder(s, types.ManagementHierarchy(), nil).Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.HasNode("STORY-1") {
		t.Error("management hierarchy must not descend into stories")
	}
	if !g.HasNode("EPIC-1") {
		t.Error("epics themselves stay in the management tree")
	}
}

func TestBuildTerminatesOnCycle(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "A-1", Type: "Business Epic", Title: "a", Links: []types.LinkRef{link("B-1", types.RelationChild)}},
		&types.Issue{Key: "B-1", Type: "Portfolio Epic", Title: "b", Links: []types.LinkRef{link("C-1", types.RelationChild)}},
		&types.Issue{Key: "C-1", Type: "Initiative", Title: "c", Links: []types.LinkRef{link("A-1", types.RelationChild)}},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "A-1")
	if err != nil {
		t.Fatalf("Build on cyclic data: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size = %d, want 3", g.Size())
	}
	if got := len(g.Edges()); got != 3 {
		t.Errorf("edges = %d, want 3 (back edge kept, not duplicated)", got)
	}
}

func TestBuildDeduplicatesSharedChildren(t *testing.T) {
	// STORY-1 is linked from the epic twice via different link records.
	s := seed(t,
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic", Links: []types.LinkRef{
			link("STORY-1", types.RelationIssueInEpic),
			link("STORY-1", types.RelationIssueInEpic),
		}},
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "Story"},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "EPIC-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := len(g.Edges()); got != 1 {
		t.Errorf("edges = %d, want 1 after dedup", got)
	}
}

func TestBuildIgnoresDisallowedBackLinks(t *testing.T) {
	// STORY-1 links back to its epic via a relation kind that epics do
	// not list for stories; only the two downward edges survive.
	s := seed(t,
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic", Links: []types.LinkRef{
			link("STORY-1", types.RelationIssueInEpic),
			link("STORY-2", types.RelationIssueInEpic),
		}},
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "First", Links: []types.LinkRef{
			link("EPIC-1", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "STORY-2", Type: "Story", Title: "Second"},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "EPIC-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size = %d, want 3", g.Size())
	}
	if got := len(g.Edges()); got != 2 {
		t.Errorf("edges = %d, want 2 (back-link ignored)", got)
	}
}

func TestBuildPrunesExcludedResolutions(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "BEMABU-1", Type: "Business Epic", Title: "Root", Links: []types.LinkRef{
			link("EPIC-1", types.RelationRealizedBy),
			link("EPIC-2", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Kept"},
		&types.Issue{Key: "EPIC-2", Type: "Epic", Title: "Dropped", Resolution: "Rejected"},
	)

	b := NewBuilder(s, types.FullHierarchy(), nil)
	g, err := b.Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.HasNode("EPIC-2") {
		t.Error("rejected issue must be pruned by default")
	}

	b.IncludeExcluded = true
	g, err = b.Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !g.HasNode("EPIC-2") {
		t.Error("IncludeExcluded must keep rejected issues")
	}
}

func TestBuildSkipsUncachedLinks(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "BEMABU-1", Type: "Business Epic", Title: "Root", Links: []types.LinkRef{
			link("GONE-1", types.RelationChild),
			link("EPIC-1", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic"},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.HasNode("GONE-1") {
		t.Error("links to uncached keys must be skipped, not materialized")
	}
	if !g.HasNode("EPIC-1") {
		t.Error("remaining links must still be followed")
	}
}

func TestBuildRootValidation(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "Leaf"},
		&types.Issue{Key: "BEMABU-2", Type: "Business Epic", Title: "Dead", Resolution: "Withdrawn"},
	)
	b := NewBuilder(s, types.FullHierarchy(), nil)
	ctx := context.Background()

	var verr *ValidationError
	if _, err := b.Build(ctx, "MISSING-1"); !errors.As(err, &verr) {
		t.Errorf("missing root: want ValidationError, got %v", err)
	}
	if _, err := b.Build(ctx, "STORY-1"); !errors.As(err, &verr) {
		t.Errorf("non-root type: want ValidationError, got %v", err)
	}
	if _, err := b.Build(ctx, "BEMABU-2"); !errors.As(err, &verr) {
		t.Errorf("withdrawn root: want ValidationError, got %v", err)
	}
	if _, err := b.Build(ctx, "not a key"); !errors.As(err, &verr) {
		t.Errorf("malformed key: want ValidationError, got %v", err)
	}
}

func TestWriteText(t *testing.T) {
	s := seed(t,
		&types.Issue{Key: "BEMABU-1", Type: "Business Epic", Title: "Root", Links: []types.LinkRef{
			link("EPIC-1", types.RelationRealizedBy),
		}},
		&types.Issue{Key: "EPIC-1", Type: "Epic", Title: "Epic", Links: []types.LinkRef{
			link("STORY-1", types.RelationIssueInEpic),
		}},
		&types.Issue{Key: "STORY-1", Type: "Story", Title: "Story"},
	)

	g, err := NewBuilder(s, types.FullHierarchy(), nil).Build(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sb strings.Builder
	if err := g.WriteText(&sb, "BEMABU-1"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"BEMABU-1 [Business Epic] Root",
		"    EPIC-1 [Epic] Epic",
		"        STORY-1 [Story] Story",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
