// Package transform maps raw tracker records into the canonical Issue
// shape. It is pure: absent or malformed optional fields simply become
// zero values.
package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/jira"
	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// trackedFields is the allow-list of changelog field names that survive
// into Issue.Activities. Everything else is noise for the analyses.
var trackedFields = map[string]bool{
	"Program Increment":   true,
	"status":              true,
	"Fix Version":         true,
	"Version":             true,
	"Target end":          true,
	"Target start":        true,
	"Business Scope":      true,
	"Component":           true,
	"Acceptance Criteria": true,
	"description":         true,
	"summary":             true,
	"resolution":          true,
	"Epic Child":          true,
	"Sprint":              true,
	"Story Points":        true,
	"Attachment":          true,
}

// realizesRelation is the tracker-side link type name that marks the
// "realized by" hierarchy edge.
const realizesRelation = "realizes"

// Transform converts one raw record plus its separately fetched child
// list into a canonical Issue. children come from the type-specific
// hierarchy search and are merged into Links alongside explicit
// realized-by links and sub-tasks.
func Transform(raw *jira.RawIssue, children []jira.ChildRef) *types.Issue {
	fields := normalize(raw)

	issue := &types.Issue{
		Key:                raw.Key,
		Type:               issueTypeName(fields),
		Title:              fields.str("Summary"),
		Status:             fields.objName("Status"),
		Resolution:         fields.objName("Resolution"),
		Priority:           fields.objName("Priority"),
		Points:             fields.number("Story Points"),
		Assignee:           fields.displayName("Assignee"),
		Creator:            fields.displayName("Creator"),
		Team:               teamName(fields),
		ParentKey:          parentKey(fields),
		Description:        combinedDescription(fields),
		AcceptanceCriteria: acceptanceCriteria(fields),
		FixVersions:        fields.names("Fix Version/s"),
		Components:         fields.names("Component/s"),
		Labels:             fields.strings("Labels"),
		TargetStart:        fields.str("Target start"),
		TargetEnd:          fields.str("Target end"),
		Created:            fields.time("Created"),
		Resolved:           fields.time("Resolved"),
		ClosedAt:           fields.time("Closed Date"),
		Activities:         activities(raw.Changelog),
	}

	issue.Links = mergeLinks(fields, children)
	return issue
}

// normalize applies the server-supplied name map so custom field IDs
// read as their display names.
func normalize(raw *jira.RawIssue) fieldMap {
	out := make(fieldMap, len(raw.Fields))
	for k, v := range raw.Fields {
		if name, ok := raw.Names[k]; ok && name != "" {
			out[name] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// issueTypeName resolves the issue type the same way RawIssue.TypeName
// does: by display name first, falling back to the raw API key when the
// response carries no name map.
func issueTypeName(fields fieldMap) string {
	if name := fields.objName("Issue Type"); name != "" {
		return name
	}
	return fields.objName("issuetype")
}

// mergeLinks consolidates the three link sources into one list:
// explicit realized-by issue links, the supplied hierarchy children,
// and sub-tasks. Each source tags its own relation kind.
func mergeLinks(fields fieldMap, children []jira.ChildRef) []types.LinkRef {
	links := realizedByLinks(fields)
	for _, c := range children {
		links = append(links, types.LinkRef{Key: c.Key, Relation: c.Relation, Title: c.Title})
	}
	links = append(links, subTaskLinks(fields)...)
	return links
}

type rawLinkedIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
	} `json:"fields"`
}

type rawIssueLink struct {
	Type struct {
		Inward  string `json:"inward"`
		Outward string `json:"outward"`
	} `json:"type"`
	OutwardIssue *rawLinkedIssue `json:"outwardIssue"`
	InwardIssue  *rawLinkedIssue `json:"inwardIssue"`
}

func realizedByLinks(fields fieldMap) []types.LinkRef {
	var raw []rawIssueLink
	if !fields.decode("Linked Issues", &raw) {
		fields.decode("issuelinks", &raw)
	}

	var links []types.LinkRef
	for _, l := range raw {
		var relation string
		var issue *rawLinkedIssue
		switch {
		case l.OutwardIssue != nil:
			relation, issue = l.Type.Inward, l.OutwardIssue
		case l.InwardIssue != nil:
			relation, issue = l.Type.Outward, l.InwardIssue
		}
		if relation != realizesRelation || issue == nil || issue.Key == "" {
			continue
		}
		links = append(links, types.LinkRef{
			Key:      issue.Key,
			Relation: types.RelationRealizedBy,
			Title:    issue.Fields.Summary,
		})
	}
	return links
}

func subTaskLinks(fields fieldMap) []types.LinkRef {
	var raw []rawLinkedIssue
	if !fields.decode("subtasks", &raw) {
		fields.decode("Sub-Tasks", &raw)
	}

	var links []types.LinkRef
	for _, t := range raw {
		if t.Key == "" {
			continue
		}
		links = append(links, types.LinkRef{
			Key:      t.Key,
			Relation: types.RelationSubTask,
			Title:    t.Fields.Summary,
		})
	}
	return links
}

// parentKey finds the hierarchical parent: "Parent Link" (object or
// plain string), then "Epic Link", then an outward "realizes" link.
func parentKey(fields fieldMap) string {
	if raw, ok := fields["Parent Link"]; ok {
		var obj struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Key != "" {
			return obj.Key
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	if s := fields.str("Epic Link"); s != "" {
		return s
	}

	var raw []rawIssueLink
	fields.decode("Linked Issues", &raw)
	for _, l := range raw {
		if l.OutwardIssue != nil && l.Type.Outward == realizesRelation {
			return l.OutwardIssue.Key
		}
	}
	return ""
}

// combinedDescription merges the separate "Business Scope" and
// "Description" fields into one formatted text.
func combinedDescription(fields fieldMap) string {
	scope := strings.TrimSpace(fields.str("Business Scope"))
	desc := strings.TrimSpace(fields.str("Description"))

	var parts []string
	if scope != "" {
		parts = append(parts, "*Business Scope*\r\n"+scope)
	}
	if desc != "" {
		desc = strings.TrimPrefix(desc, "Description\n")
		parts = append(parts, "*Description*\r\n"+strings.TrimSpace(desc))
	}
	return strings.Join(parts, "\n\n")
}

// acceptanceCriteria turns the semi-structured criteria field into a
// clean list, stripping "* " and "- " bullet markers.
func acceptanceCriteria(fields fieldMap) []string {
	var asList []string
	if fields.decode("Acceptance Criteria", &asList) {
		return asList
	}

	text := fields.str("Acceptance Criteria")
	if text == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "- ")
		out = append(out, line)
	}
	return out
}

// activities filters the changelog down to the tracked fields. Old and
// new description bodies are deliberately not persisted; they bloat the
// cache without analytical value.
func activities(changelog *jira.Changelog) []types.FieldChange {
	if changelog == nil {
		return nil
	}
	var out []types.FieldChange
	for _, entry := range changelog.Histories {
		for _, item := range entry.Items {
			if !trackedFields[item.Field] {
				continue
			}
			name := item.Field
			if name == "Version" {
				name = "Affects Version"
			}
			from, to := item.FromString, item.ToString
			if item.Field == "description" {
				from = "old description value not saved"
				to = "new description value not saved"
			}
			out = append(out, types.FieldChange{
				Field: name,
				From:  from,
				To:    to,
				Actor: entry.Author.DisplayName,
				At:    entry.Created,
			})
		}
	}
	return out
}

func teamName(fields fieldMap) string {
	raw, ok := fields["Team"]
	if !ok {
		return ""
	}
	var obj struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != "" {
			return obj.Name
		}
		if obj.Value != "" {
			return obj.Value
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// fieldMap is the normalized raw field set keyed by display name.
type fieldMap map[string]json.RawMessage

func (f fieldMap) decode(name string, into any) bool {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, into) == nil
}

func (f fieldMap) str(name string) string {
	var s string
	f.decode(name, &s)
	return s
}

func (f fieldMap) number(name string) float64 {
	var n float64
	f.decode(name, &n)
	return n
}

func (f fieldMap) objName(name string) string {
	var obj struct {
		Name string `json:"name"`
	}
	f.decode(name, &obj)
	return obj.Name
}

func (f fieldMap) displayName(name string) string {
	var obj struct {
		DisplayName string `json:"displayName"`
	}
	f.decode(name, &obj)
	return obj.DisplayName
}

func (f fieldMap) names(name string) []string {
	var objs []struct {
		Name string `json:"name"`
	}
	if !f.decode(name, &objs) {
		return nil
	}
	var out []string
	for _, o := range objs {
		if o.Name != "" {
			out = append(out, o.Name)
		}
	}
	return out
}

func (f fieldMap) strings(name string) []string {
	var out []string
	f.decode(name, &out)
	return out
}

func (f fieldMap) time(name string) *time.Time {
	s := f.str(name)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
