package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// hierarchyFile is the YAML shape of a custom hierarchy definition:
//
//	hierarchy:
//	  Business Epic: [realized_by, child]
//	  Epic: [issue_in_epic]
type hierarchyFile struct {
	Hierarchy map[string][]string `yaml:"hierarchy"`
}

// SelectHierarchy resolves a hierarchy by name: the built-in
// "management" and "full" views, or a path to a YAML definition.
func SelectHierarchy(name string) (types.Hierarchy, error) {
	switch name {
	case "", "management":
		return types.ManagementHierarchy(), nil
	case "full":
		return types.FullHierarchy(), nil
	default:
		return LoadHierarchy(name)
	}
}

// LoadHierarchy reads a custom hierarchy from a YAML file. Unknown
// relation kinds are rejected instead of silently dropped.
func LoadHierarchy(path string) (types.Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy %s: %w", path, err)
	}

	var file hierarchyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing hierarchy %s: %w", path, err)
	}
	if len(file.Hierarchy) == 0 {
		return nil, fmt.Errorf("hierarchy %s defines no issue types", path)
	}

	h := make(types.Hierarchy, len(file.Hierarchy))
	for issueType, kinds := range file.Hierarchy {
		out := make([]types.RelationKind, 0, len(kinds))
		for _, raw := range kinds {
			kind, err := types.ParseRelationKind(raw)
			if err != nil {
				return nil, fmt.Errorf("hierarchy %s, type %q: %w", path, issueType, err)
			}
			out = append(out, kind)
		}
		h[issueType] = out
	}
	return h, nil
}
