// Package types defines the canonical data structures shared by the
// crawler, the storage backends, and the tree builder.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Issue is the canonical, normalized record produced by the transformer.
// It is independent of the remote tracker's raw field names; JSON tags
// define the persisted cache format.
type Issue struct {
	// ===== Identification =====
	Key   string `json:"key"`
	Type  string `json:"issue_type"`
	Title string `json:"title"`

	// ===== Workflow =====
	Status     string `json:"status,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Priority   string `json:"priority,omitempty"`

	// ===== Content =====
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Points             float64  `json:"story_points,omitempty"`

	// ===== People =====
	Assignee string `json:"assignee,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Team     string `json:"team,omitempty"`

	// ===== Hierarchy =====
	ParentKey string    `json:"parent_link,omitempty"`
	Links     []LinkRef `json:"issue_links,omitempty"`

	// ===== Classification =====
	FixVersions []string `json:"fix_versions,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Components  []string `json:"components,omitempty"`

	// ===== History =====
	Activities []FieldChange `json:"activities,omitempty"`

	// ===== Lifecycle timestamps =====
	Created  *time.Time `json:"created,omitempty"`
	Resolved *time.Time `json:"resolved,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// ===== Scheduling hints =====
	TargetStart string `json:"target_start,omitempty"`
	TargetEnd   string `json:"target_end,omitempty"`
}

// LinkRef references another issue by key. Links may point at keys that
// are not yet cached locally.
type LinkRef struct {
	Key      string       `json:"key"`
	Relation RelationKind `json:"relation_type"`
	Title    string       `json:"title,omitempty"`
}

// FieldChange is one entry of an issue's filtered change history.
// At keeps the tracker's original ISO timestamp string so that records
// round-trip unchanged through the cache.
type FieldChange struct {
	Field string `json:"field_name"`
	From  string `json:"old_value,omitempty"`
	To    string `json:"new_value,omitempty"`
	Actor string `json:"actor_name,omitempty"`
	At    string `json:"timestamp_iso"`
}

// Time parses the change timestamp. Returns the zero time if the
// tracker's format is unrecognized.
func (c FieldChange) Time() time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, c.At); err == nil {
			return t
		}
	}
	return time.Time{}
}

var keyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[1-9][0-9]*$`)

// ValidateKey checks the <PROJECT>-<number> issue key format.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid issue key %q: want <PROJECT>-<number>", key)
	}
	return nil
}

// Project returns the project prefix of an issue key ("BEMABU-123" -> "BEMABU").
func Project(key string) string {
	if i := strings.IndexByte(key, '-'); i > 0 {
		return key[:i]
	}
	return key
}

// RelationKind is a closed enum of link relation kinds the crawler
// understands. Unknown kinds are rejected at the boundary rather than
// silently ignored.
type RelationKind string

// Relation kind constants
const (
	// RelationChild links a portfolio-level issue to a direct child
	// found via the "Parent Link" query.
	RelationChild RelationKind = "child"

	// RelationIssueInEpic links an epic to a story found via the
	// "Epic Link" query.
	RelationIssueInEpic RelationKind = "issue_in_epic"

	// RelationRealizedBy is an explicit "realizes" issue link seen
	// from the realized side.
	RelationRealizedBy RelationKind = "realized_by"

	// RelationSubTask links an issue to one of its sub-tasks.
	RelationSubTask RelationKind = "sub_task"
)

// IsValid checks if the relation kind is one of the known constants.
func (k RelationKind) IsValid() bool {
	switch k {
	case RelationChild, RelationIssueInEpic, RelationRealizedBy, RelationSubTask:
		return true
	}
	return false
}

// ParseRelationKind converts a raw relation string into a RelationKind,
// rejecting anything outside the closed set.
func ParseRelationKind(s string) (RelationKind, error) {
	k := RelationKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown relation kind %q", s)
	}
	return k, nil
}

// Hierarchy maps an issue type to the relation kinds the tree may follow
// from issues of that type. Types present in the map are valid hierarchy
// roots; types absent from the map terminate traversal.
type Hierarchy map[string][]RelationKind

// IsRoot reports whether issues of the given type may start a tree.
func (h Hierarchy) IsRoot(issueType string) bool {
	_, ok := h[issueType]
	return ok
}

// Allowed returns the relation kinds to follow from the given issue type.
func (h Hierarchy) Allowed(issueType string) []RelationKind {
	return h[issueType]
}

// Allows reports whether a link of the given kind should be traversed
// from an issue of the given type.
func (h Hierarchy) Allows(issueType string, kind RelationKind) bool {
	for _, k := range h[issueType] {
		if k == kind {
			return true
		}
	}
	return false
}

// ManagementHierarchy follows only the portfolio levels, stopping above
// epics. This is the default view for management reporting.
func ManagementHierarchy() Hierarchy {
	return Hierarchy{
		"Business Initiative": {RelationRealizedBy, RelationChild},
		"Business Epic":       {RelationRealizedBy, RelationChild},
		"Portfolio Epic":      {RelationRealizedBy, RelationChild},
		"Initiative":          {RelationRealizedBy, RelationChild},
	}
}

// FullHierarchy additionally descends from epics into their stories.
func FullHierarchy() Hierarchy {
	h := ManagementHierarchy()
	h["Epic"] = []RelationKind{RelationIssueInEpic}
	return h
}

// Resolutions that exclude an issue from tree builds unless the caller
// explicitly opts in.
const (
	ResolutionRejected  = "Rejected"
	ResolutionWithdrawn = "Withdrawn"
)

// IsExcludedResolution reports whether the resolution removes an issue
// from tree builds by default.
func IsExcludedResolution(resolution string) bool {
	return resolution == ResolutionRejected || resolution == ResolutionWithdrawn
}
