package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Signature computes the documented identity signature for one element of
// an append-merged field. Used by the duplication detector (§4.4, §8
// invariant 1: len(F) <= 2 * unique_signatures(F)) and by fan-out cohorts to
// sort their gathered results deterministically before writing (§4.3).
func EntitySignature(e Entity) string { return strings.ToLower(e.Name) }

func RelationSignature(r Relation) string {
	ents := append([]string(nil), r.Entities...)
	sort.Strings(ents)
	for i, e := range ents {
		ents[i] = strings.ToLower(e)
	}
	return strings.Join(ents, "|") + "::" + strings.ToLower(r.Type)
}

func ConstraintSignature(c Constraint) string {
	attrs := append([]string(nil), c.Attributes...)
	sort.Strings(attrs)
	return strings.ToLower(c.Entity) + "::" + strings.ToLower(c.Kind) + "::" + strings.Join(attrs, ",")
}

func InformationNeedSignature(n InformationNeed) string { return n.ID }

func FunctionalDependencySignature(fd FunctionalDependency) string {
	det := append([]string(nil), fd.Determinant...)
	dep := append([]string(nil), fd.Dependent...)
	sort.Strings(det)
	sort.Strings(dep)
	return strings.ToLower(fd.Entity) + "::" + strings.Join(det, ",") + "->" + strings.Join(dep, ",")
}

func DDLStatementSignature(ddl string) string {
	return strings.Join(strings.Fields(strings.ToLower(ddl)), " ")
}

// CountUnique returns len(items) and the number of distinct signatures,
// using sig to compute each element's signature.
func CountUnique[T any](items []T, sig func(T) string) (total, unique int) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[sig(it)] = struct{}{}
	}
	return len(items), len(seen)
}

// Duplicated reports whether items is flagged by the list-duplication
// detector: len(items) > 2*unique(items).
func Duplicated[T any](items []T, sig func(T) string) bool {
	total, unique := CountUnique(items, sig)
	return total > 2*unique
}

// DescribeDuplication is a human-readable summary for a duplication warning.
func DescribeDuplication(field string, total, unique int) string {
	return fmt.Sprintf("duplication detector: field %q has %d entries but only %d unique signatures", field, total, unique)
}
