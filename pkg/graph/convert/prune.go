package convert

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
)

// gvkExtension is the definition-level extension Kubernetes uses to tie
// a swagger definition to its group/version/kind.
const gvkExtension = "x-kubernetes-group-version-kind"

// PruneStats reports how much of the document a Prune call removed.
type PruneStats struct {
	PathsKept          int
	PathsDropped       int
	DefinitionsKept    int
	DefinitionsDropped int
}

// Prune trims doc in place to the given API groups. The core group is
// named by the empty string. Paths outside the allowed groups are
// removed; definitions carrying a group-version-kind for a disallowed
// group are removed. Definitions without the marker (shared meta types)
// are kept, since resource definitions reference them.
func Prune(doc *openapi2.T, allowedGroups []string) PruneStats {
	var stats PruneStats
	if doc == nil {
		return stats
	}

	allowed := make(map[string]bool, len(allowedGroups))
	for _, group := range allowedGroups {
		allowed[group] = true
	}

	for path := range doc.Paths {
		if pathAllowed(path, allowed) {
			stats.PathsKept++
			continue
		}
		delete(doc.Paths, path)
		stats.PathsDropped++
	}

	for name, ref := range doc.Definitions {
		if definitionAllowed(ref, allowed) {
			stats.DefinitionsKept++
			continue
		}
		delete(doc.Definitions, name)
		stats.DefinitionsDropped++
	}

	return stats
}

func pathAllowed(path string, allowed map[string]bool) bool {
	if allowed[""] && (path == "/api" || strings.HasPrefix(path, "/api/")) {
		return true
	}
	for group := range allowed {
		if group == "" {
			continue
		}
		prefix := "/apis/" + group
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func definitionAllowed(ref *openapi2.SchemaRef, allowed map[string]bool) bool {
	gvks := definitionGVKs(ref)
	if len(gvks) == 0 {
		return true
	}
	for _, gvk := range gvks {
		if allowed[gvk.Group] {
			return true
		}
	}
	return false
}

// definitionGVK is the decoded form of one gvkExtension entry.
type definitionGVK struct {
	Group   string
	Version string
	Kind    string
}

func definitionGVKs(ref *openapi2.SchemaRef) []definitionGVK {
	if ref == nil || ref.Value == nil {
		return nil
	}
	raw, ok := ref.Value.Extensions[gvkExtension]
	if !ok {
		return nil
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]definitionGVK, 0, len(entries))
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		gvk := definitionGVK{}
		gvk.Group, _ = fields["group"].(string)
		gvk.Version, _ = fields["version"].(string)
		gvk.Kind, _ = fields["kind"].(string)
		out = append(out, gvk)
	}
	return out
}

// FindDefinition returns the definition matching group/version/kind, if
// the document carries one.
func FindDefinition(doc *openapi2.T, group, version, kind string) (*openapi2.Schema, bool) {
	if doc == nil {
		return nil, false
	}
	for _, ref := range doc.Definitions {
		for _, gvk := range definitionGVKs(ref) {
			if gvk.Group == group && gvk.Version == version && gvk.Kind == kind {
				return ref.Value, true
			}
		}
	}
	return nil, false
}
