package models

import (
	"sort"
	"strings"
)

// FD sources
const (
	FDSourceDeclared = "declared"
	FDSourceInferred = "inferred"
)

// FunctionalDependency states that determinant values uniquely determine
// dependent values across all rows. Determinant and dependent attribute sets
// are disjoint by construction.
type FunctionalDependency struct {
	Determinant []string `json:"determinant" yaml:"determinant"`
	Dependent   []string `json:"dependent" yaml:"dependent"`
	// Source records whether the dependency was declared by the caller or
	// inferred from data.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Support is the size of the largest row group backing an inferred
	// dependency. Zero for declared dependencies.
	Support int `json:"support,omitempty" yaml:"support,omitempty"`
	// Violations counts row groups contradicting the dependency when it was
	// accepted approximately on sampled data. Always zero for exact holds.
	Violations int `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// NewFD builds a dependency with a disjoint, deduplicated dependent side.
func NewFD(determinant, dependent []string) FunctionalDependency {
	det := dedupe(determinant)
	detSet := make(map[string]struct{}, len(det))
	for _, a := range det {
		detSet[a] = struct{}{}
	}
	var dep []string
	for _, a := range dedupe(dependent) {
		if _, ok := detSet[a]; !ok {
			dep = append(dep, a)
		}
	}
	return FunctionalDependency{Determinant: det, Dependent: dep}
}

// Key returns a canonical identity string for deduplication. Attribute order
// within either side does not affect it.
func (fd FunctionalDependency) Key() string {
	return strings.Join(sortedCopy(fd.Determinant), ",") + "->" + strings.Join(sortedCopy(fd.Dependent), ",")
}

// String renders the dependency as "A, B -> C".
func (fd FunctionalDependency) String() string {
	return strings.Join(fd.Determinant, ", ") + " -> " + strings.Join(fd.Dependent, ", ")
}

// DeterminantEquals reports whether the determinant matches the given
// attribute set, ignoring order.
func (fd FunctionalDependency) DeterminantEquals(attrs []string) bool {
	return sameAttrSet(fd.Determinant, attrs)
}

// DependsOn reports whether the named attribute is on the dependent side.
func (fd FunctionalDependency) DependsOn(name string) bool {
	for _, a := range fd.Dependent {
		if a == name {
			return true
		}
	}
	return false
}

// Determines reports whether the named attribute is on the determinant side.
func (fd FunctionalDependency) Determines(name string) bool {
	for _, a := range fd.Determinant {
		if a == name {
			return true
		}
	}
	return false
}

// DedupeFDs returns the dependencies with exact duplicates removed,
// preserving first-seen order.
func DedupeFDs(fds []FunctionalDependency) []FunctionalDependency {
	seen := make(map[string]struct{}, len(fds))
	out := make([]FunctionalDependency, 0, len(fds))
	for _, fd := range fds {
		if len(fd.Determinant) == 0 || len(fd.Dependent) == 0 {
			continue
		}
		k := fd.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, fd)
	}
	return out
}

func dedupe(attrs []string) []string {
	seen := make(map[string]struct{}, len(attrs))
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func sortedCopy(attrs []string) []string {
	out := make([]string, len(attrs))
	copy(out, attrs)
	sort.Strings(out)
	return out
}

func sameAttrSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := sortedCopy(a), sortedCopy(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
