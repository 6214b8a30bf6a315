package gate

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/nl2schema/pkg/pipeline"
	"github.com/codeready-toolchain/nl2schema/pkg/similarity"
)

// ValidateEntityName checks that name resolves against s's canonical
// entity set (case-insensitive); on miss, appends a warning carrying
// similarity-based suggestions (§4.5.B).
func ValidateEntityName(s *pipeline.State, name string) []string {
	if s.HasEntity(name) {
		return nil
	}
	suggestions := similarity.Suggest(name, s.EntityNames(), similarity.DefaultThreshold, 3)
	return []string{fmt.Sprintf("unknown entity %q%s", name, suggestionText(suggestions))}
}

// ValidateAttributeName checks an "Entity.attribute" reference resolves.
func ValidateAttributeName(s *pipeline.State, ref string) []string {
	entity, attr, ok := splitRef(ref)
	if !ok {
		return []string{fmt.Sprintf("malformed attribute reference %q", ref)}
	}
	if warnings := ValidateEntityName(s, entity); warnings != nil {
		return warnings
	}
	attrs := attributeNames(s, entity)
	for _, a := range attrs {
		if strings.EqualFold(a, attr) {
			return nil
		}
	}
	suggestions := similarity.Suggest(attr, attrs, similarity.DefaultThreshold, 3)
	return []string{fmt.Sprintf("unknown attribute %q on entity %q%s", attr, entity, suggestionText(suggestions))}
}

// ValidateConsistency runs the entity/attribute consistency checks of
// §4.5.B part 3: every entity in Attributes exists in Entities; no
// duplicate entity names; no duplicate attribute names within an entity.
func ValidateConsistency(s *pipeline.State) []string {
	var warnings []string

	seen := map[string]bool{}
	for _, e := range s.Entities {
		key := strings.ToLower(e.Name)
		if seen[key] {
			warnings = append(warnings, fmt.Sprintf("duplicate entity name %q", e.Name))
		}
		seen[key] = true
	}

	for entity := range s.Attributes {
		if !s.HasEntity(entity) {
			warnings = append(warnings, fmt.Sprintf("attributes reference entity %q not present in entities", entity))
			continue
		}
		attrSeen := map[string]bool{}
		for _, a := range s.Attributes[entity] {
			key := strings.ToLower(a.Name)
			if attrSeen[key] {
				warnings = append(warnings, fmt.Sprintf("duplicate attribute %q on entity %q", a.Name, entity))
			}
			attrSeen[key] = true
		}
	}

	return warnings
}

func attributeNames(s *pipeline.State, entity string) []string {
	for name, attrs := range s.Attributes {
		if strings.EqualFold(name, entity) {
			out := make([]string, len(attrs))
			for i, a := range attrs {
				out[i] = a.Name
			}
			return out
		}
	}
	return nil
}

func splitRef(ref string) (entity, attr string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i < 0 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

func suggestionText(suggestions []similarity.Suggestion) string {
	if len(suggestions) == 0 {
		return ""
	}
	names := make([]string, len(suggestions))
	for i, sg := range suggestions {
		names[i] = sg.Candidate
	}
	return " (did you mean: " + strings.Join(names, ", ") + "?)"
}
