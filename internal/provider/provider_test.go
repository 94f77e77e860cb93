package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/RalfNiem/business-epic-analyzer/internal/storage/memory"
	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()

	issues := []*types.Issue{
		{
			Key: "BEMABU-1", Type: "Business Epic", Title: "Root",
			Links: []types.LinkRef{{Key: "EPIC-1", Relation: types.RelationRealizedBy}},
			Activities: []types.FieldChange{
				{Field: "status", To: "In Progress", At: "2024-03-01T10:00:00.000+0100"},
			},
		},
		{
			Key: "EPIC-1", Type: "Epic", Title: "Epic",
			Activities: []types.FieldChange{
				{Field: "Story Points", To: "8", At: "2024-01-15T09:00:00.000+0100"},
				{Field: "status", To: "Closed", At: "2024-05-01T12:00:00.000+0200"},
			},
		},
	}
	for _, i := range issues {
		if _, err := s.Upsert(ctx, i); err != nil {
			t.Fatalf("Upsert %s: %v", i.Key, err)
		}
	}
	return s
}

func TestTreeAndIssues(t *testing.T) {
	p := New(seed(t), types.FullHierarchy(), nil)
	ctx := context.Background()

	g, err := p.Tree(ctx, "BEMABU-1")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if g.Size() != 2 {
		t.Errorf("Size = %d, want 2", g.Size())
	}

	issues, err := p.Issues(ctx, "BEMABU-1")
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if len(issues) != 2 || issues[0].Key != "BEMABU-1" {
		t.Errorf("Issues = %v", issues)
	}
}

func TestIssueNotCached(t *testing.T) {
	p := New(seed(t), types.FullHierarchy(), nil)

	_, err := p.Issue(context.Background(), "GONE-1")
	var nc *ErrNotCached
	if !errors.As(err, &nc) || nc.Key != "GONE-1" {
		t.Fatalf("want ErrNotCached for GONE-1, got %v", err)
	}
}

func TestActivitiesSortedAcrossIssues(t *testing.T) {
	p := New(seed(t), types.FullHierarchy(), nil)

	acts, err := p.Activities(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("Activities: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("len = %d, want 3", len(acts))
	}

	// Chronological across issues, not grouped per issue.
	wantOrder := []string{"EPIC-1", "BEMABU-1", "EPIC-1"}
	for i, want := range wantOrder {
		if acts[i].Key != want {
			t.Errorf("acts[%d].Key = %q, want %q", i, acts[i].Key, want)
		}
	}
	if acts[0].Field != "Story Points" || acts[2].To != "Closed" {
		t.Errorf("unexpected order: %+v", acts)
	}
}
