// Package provider is the read-side data hub for analyses: it answers
// questions about cached hierarchies without touching the tracker.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/tree"
	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// Source is the slice of the cache the provider reads from.
type Source interface {
	Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error)
}

// ErrNotCached is returned when a requested key has no local record.
type ErrNotCached struct{ Key string }

func (e *ErrNotCached) Error() string {
	return fmt.Sprintf("provider: %s is not in the local cache", e.Key)
}

// Activity is one change event annotated with the issue it belongs to.
type Activity struct {
	Key string `json:"key"`
	types.FieldChange
}

// Provider serves trees, issue details and change histories from the
// local cache.
type Provider struct {
	source  Source
	builder *tree.Builder
	log     *slog.Logger
}

// New wires a provider over the given cache and hierarchy.
func New(source Source, hierarchy types.Hierarchy, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		source:  source,
		builder: tree.NewBuilder(source, hierarchy, log),
		log:     log,
	}
}

// Builder exposes the underlying tree builder so callers can toggle
// its options.
func (p *Provider) Builder() *tree.Builder { return p.builder }

// Tree builds the hierarchy below rootKey from the cache.
func (p *Provider) Tree(ctx context.Context, rootKey string) (*tree.Graph, error) {
	return p.builder.Build(ctx, rootKey)
}

// Issue returns the cached record for key.
func (p *Provider) Issue(ctx context.Context, key string) (*types.Issue, error) {
	issue, _, ok, err := p.source.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ErrNotCached{Key: key}
	}
	return issue, nil
}

// Issues returns the cached records for every node of the tree below
// rootKey, in tree insertion order.
func (p *Provider) Issues(ctx context.Context, rootKey string) ([]*types.Issue, error) {
	g, err := p.Tree(ctx, rootKey)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Issue, 0, g.Size())
	for _, key := range g.Keys() {
		issue, err := p.Issue(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, nil
}

// Activities collects every tracked change across the tree below
// rootKey, sorted chronologically. Entries with unparseable timestamps
// sort first so they are easy to spot.
func (p *Provider) Activities(ctx context.Context, rootKey string) ([]Activity, error) {
	issues, err := p.Issues(ctx, rootKey)
	if err != nil {
		return nil, err
	}

	var out []Activity
	for _, issue := range issues {
		for _, change := range issue.Activities {
			out = append(out, Activity{Key: issue.Key, FieldChange: change})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})
	return out, nil
}
