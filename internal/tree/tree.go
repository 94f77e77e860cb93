// Package tree builds issue hierarchies from the local cache. It never
// talks to the tracker; a crawl must have populated the cache first.
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// IssueSource is the slice of the cache the builder needs.
type IssueSource interface {
	Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error)
}

// ValidationError reports a root that cannot start a tree: unknown key,
// non-root type, or an excluded resolution.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tree: cannot build from %s: %s", e.Key, e.Reason)
}

// Builder assembles graphs from cached issues following one hierarchy.
type Builder struct {
	source    IssueSource
	hierarchy types.Hierarchy
	log       *slog.Logger

	// IncludeExcluded keeps rejected and withdrawn issues in the tree
	// instead of pruning them.
	IncludeExcluded bool
}

// NewBuilder wires a builder over the given cache and hierarchy.
func NewBuilder(source IssueSource, hierarchy types.Hierarchy, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{source: source, hierarchy: hierarchy, log: log}
}

// Build walks the cached hierarchy below rootKey depth-first and returns
// the resulting graph. A visited set makes cyclic link data terminate;
// links to keys missing from the cache are logged and skipped.
func (b *Builder) Build(ctx context.Context, rootKey string) (*Graph, error) {
	if err := types.ValidateKey(rootKey); err != nil {
		return nil, &ValidationError{Key: rootKey, Reason: err.Error()}
	}

	root, _, ok, err := b.source.Get(ctx, rootKey)
	if err != nil {
		return nil, fmt.Errorf("tree: loading root %s: %w", rootKey, err)
	}
	if !ok {
		return nil, &ValidationError{Key: rootKey, Reason: "not in the local cache"}
	}
	if !b.hierarchy.IsRoot(root.Type) {
		return nil, &ValidationError{Key: rootKey, Reason: fmt.Sprintf("type %q cannot start a tree", root.Type)}
	}
	if !b.IncludeExcluded && types.IsExcludedResolution(root.Resolution) {
		return nil, &ValidationError{Key: rootKey, Reason: fmt.Sprintf("resolution %q is excluded", root.Resolution)}
	}

	g := NewGraph()
	visited := map[string]bool{}
	stack := []*types.Issue{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		issue := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[issue.Key] {
			continue
		}
		visited[issue.Key] = true

		g.AddNode(Node{Key: issue.Key, Type: issue.Type, Title: issue.Title, Status: issue.Status})

		for _, link := range issue.Links {
			if !b.hierarchy.Allows(issue.Type, link.Relation) {
				continue
			}

			child, _, ok, err := b.source.Get(ctx, link.Key)
			if err != nil {
				return nil, fmt.Errorf("tree: loading %s: %w", link.Key, err)
			}
			if !ok {
				b.log.Warn("linked issue not cached, skipping", "parent", issue.Key, "child", link.Key)
				continue
			}
			if !b.IncludeExcluded && types.IsExcludedResolution(child.Resolution) {
				b.log.Debug("pruning excluded issue", "key", child.Key, "resolution", child.Resolution)
				continue
			}

			g.AddNode(Node{Key: child.Key, Type: child.Type, Title: child.Title, Status: child.Status})
			g.AddEdge(issue.Key, child.Key, link.Relation)
			if !visited[child.Key] {
				stack = append(stack, child)
			}
		}
	}

	b.log.Info("tree built", "root", rootKey, "nodes", g.Size(), "edges", len(g.Edges()))
	return g, nil
}
