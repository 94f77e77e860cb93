package tree

import (
	"fmt"
	"io"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// Node is one issue in a built tree, reduced to what rendering and
// analysis need.
type Node struct {
	Key    string `json:"key"`
	Type   string `json:"issue_type"`
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
}

// Edge is one parent-to-child relation.
type Edge struct {
	From string             `json:"from"`
	To   string             `json:"to"`
	Kind types.RelationKind `json:"relation_type"`
}

// Graph is a directed graph of issues with insertion-ordered nodes and
// deduplicated edges.
type Graph struct {
	order    []string
	nodes    map[string]*Node
	edges    []Edge
	edgeSeen map[[2]string]bool
	children map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edgeSeen: make(map[[2]string]bool),
		children: make(map[string][]string),
	}
}

// AddNode inserts or updates a node. The first insertion fixes its
// position in iteration order.
func (g *Graph) AddNode(n Node) {
	if _, ok := g.nodes[n.Key]; !ok {
		g.order = append(g.order, n.Key)
	}
	cp := n
	g.nodes[n.Key] = &cp
}

// AddEdge inserts an edge once; duplicates are ignored.
func (g *Graph) AddEdge(from, to string, kind types.RelationKind) {
	pair := [2]string{from, to}
	if g.edgeSeen[pair] {
		return
	}
	g.edgeSeen[pair] = true
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
	g.children[from] = append(g.children[from], to)
}

// Node returns the node for key, or nil.
func (g *Graph) Node(key string) *Node {
	return g.nodes[key]
}

// HasNode reports whether key is in the graph.
func (g *Graph) HasNode(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// Keys returns all node keys in insertion order.
func (g *Graph) Keys() []string {
	return append([]string(nil), g.order...)
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Children returns the direct children of key in insertion order.
func (g *Graph) Children(key string) []string {
	return append([]string(nil), g.children[key]...)
}

// Size returns the node count.
func (g *Graph) Size() int { return len(g.nodes) }

// WriteText renders the tree below root as an indented listing. Nodes
// reached through more than one path render their subtree only once;
// repeat visits are marked instead of re-expanded, which also keeps
// cyclic link data from looping the output.
func (g *Graph) WriteText(w io.Writer, root string) error {
	expanded := make(map[string]bool)
	return g.writeNode(w, root, "", expanded)
}

func (g *Graph) writeNode(w io.Writer, key, indent string, expanded map[string]bool) error {
	n := g.nodes[key]
	if n == nil {
		return fmt.Errorf("tree: node %s not in graph", key)
	}

	suffix := ""
	if expanded[key] {
		suffix = " (see above)"
	}
	if _, err := fmt.Fprintf(w, "%s%s [%s] %s%s\n", indent, n.Key, n.Type, n.Title, suffix); err != nil {
		return err
	}
	if expanded[key] {
		return nil
	}
	expanded[key] = true

	for _, child := range g.children[key] {
		if err := g.writeNode(w, child, indent+"    ", expanded); err != nil {
			return err
		}
	}
	return nil
}
