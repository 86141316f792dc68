package services

import (
	"sort"

	"github.com/relnorm/relnorm-engine/pkg/models"
)

// maxKeySearchAttrs bounds exhaustive candidate key enumeration. Beyond this
// many free attributes the search space is 2^n and we fall back to a greedy
// single-key reduction.
const maxKeySearchAttrs = 16

// ClosureOf computes the attribute closure of attrs under the given
// dependencies: every attribute functionally determined by attrs. The result
// is sorted and always contains the seed attributes.
func ClosureOf(attrs []string, fds []models.FunctionalDependency) []string {
	closure := closureSet(attrs, fds)
	out := make([]string, 0, len(closure))
	for a := range closure {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func closureSet(attrs []string, fds []models.FunctionalDependency) map[string]struct{} {
	closure := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		closure[a] = struct{}{}
	}
	for changed := true; changed; {
		changed = false
		for _, fd := range fds {
			if !subsetOf(fd.Determinant, closure) {
				continue
			}
			for _, dep := range fd.Dependent {
				if _, ok := closure[dep]; !ok {
					closure[dep] = struct{}{}
					changed = true
				}
			}
		}
	}
	return closure
}

func subsetOf(attrs []string, set map[string]struct{}) bool {
	for _, a := range attrs {
		if _, ok := set[a]; !ok {
			return false
		}
	}
	return true
}

// CoversAll reports whether attrs functionally determine every attribute
// in all, i.e. whether attrs is a superkey of a relation with heading all.
func CoversAll(attrs, all []string, fds []models.FunctionalDependency) bool {
	closure := closureSet(attrs, fds)
	return subsetOf(all, closure)
}

// MinimalCover reduces a dependency set to a canonical minimal cover:
// singleton right sides are combined per determinant, extraneous determinant
// attributes are removed, and redundant dependencies are dropped. Applying
// MinimalCover to its own output returns an equivalent set.
func MinimalCover(fds []models.FunctionalDependency) []models.FunctionalDependency {
	// Split to singleton dependents.
	var split []models.FunctionalDependency
	for _, fd := range models.DedupeFDs(fds) {
		for _, dep := range fd.Dependent {
			next := models.NewFD(fd.Determinant, []string{dep})
			next.Source = fd.Source
			next.Support = fd.Support
			next.Violations = fd.Violations
			split = append(split, next)
		}
	}
	split = models.DedupeFDs(split)

	// Remove extraneous determinant attributes: A is extraneous in AB -> c
	// when c is already in the closure of B.
	for i := range split {
		for len(split[i].Determinant) > 1 {
			removed := false
			det := split[i].Determinant
			for j := range det {
				reduced := make([]string, 0, len(det)-1)
				reduced = append(reduced, det[:j]...)
				reduced = append(reduced, det[j+1:]...)
				closure := closureSet(reduced, split)
				if subsetOf(split[i].Dependent, closure) {
					split[i].Determinant = reduced
					removed = true
					break
				}
			}
			if !removed {
				break
			}
		}
	}
	split = models.DedupeFDs(split)

	// Remove redundant dependencies: fd is redundant when its dependent is
	// derivable from its determinant using the remaining dependencies.
	kept := append([]models.FunctionalDependency(nil), split...)
	for i := 0; i < len(kept); i++ {
		fd := kept[i]
		rest := make([]models.FunctionalDependency, 0, len(kept)-1)
		rest = append(rest, kept[:i]...)
		rest = append(rest, kept[i+1:]...)
		closure := closureSet(fd.Determinant, rest)
		if subsetOf(fd.Dependent, closure) {
			kept = rest
			i--
		}
	}

	// Merge dependents that share a determinant, preserving first-seen order.
	type group struct {
		fd models.FunctionalDependency
	}
	var order []string
	groups := make(map[string]*group)
	for _, fd := range kept {
		key := joinSorted(fd.Determinant)
		g, ok := groups[key]
		if !ok {
			g = &group{fd: fd}
			groups[key] = g
			order = append(order, key)
			continue
		}
		g.fd.Dependent = append(g.fd.Dependent, fd.Dependent...)
	}

	out := make([]models.FunctionalDependency, 0, len(order))
	for _, key := range order {
		fd := groups[key].fd
		fd.Dependent = dedupeStrings(fd.Dependent)
		out = append(out, fd)
	}
	return out
}

// CandidateKeys finds every minimal attribute set that determines the whole
// heading. Attributes that appear on no dependent side belong to every key;
// attributes that appear only on dependent sides belong to none. When the
// remaining free attributes exceed maxKeySearchAttrs the search degrades to
// one greedily minimized key.
func CandidateKeys(attrs []string, fds []models.FunctionalDependency) []models.CandidateKey {
	if len(attrs) == 0 {
		return nil
	}

	inDependent := make(map[string]bool)
	inDeterminant := make(map[string]bool)
	for _, fd := range fds {
		for _, a := range fd.Dependent {
			inDependent[a] = true
		}
		for _, a := range fd.Determinant {
			inDeterminant[a] = true
		}
	}

	var core, middle []string
	for _, a := range attrs {
		switch {
		case !inDependent[a]:
			core = append(core, a)
		case inDeterminant[a]:
			middle = append(middle, a)
		}
		// Attributes only on dependent sides are never part of a key.
	}

	if CoversAll(core, attrs, fds) {
		return []models.CandidateKey{{Attributes: append([]string(nil), core...)}}
	}

	if len(middle) > maxKeySearchAttrs {
		return []models.CandidateKey{greedyKey(core, middle, attrs, fds)}
	}

	var keys []models.CandidateKey
	for size := 1; size <= len(middle); size++ {
		combinations(middle, size, func(combo []string) {
			candidate := append(append([]string(nil), core...), combo...)
			for _, k := range keys {
				if containsAll(candidate, k.Attributes) {
					return // superset of a known key
				}
			}
			if CoversAll(candidate, attrs, fds) {
				keys = append(keys, models.CandidateKey{Attributes: candidate})
			}
		})
	}
	if len(keys) == 0 {
		// No subset of the free attributes closes the heading; the whole
		// heading is the only key.
		return []models.CandidateKey{{Attributes: append([]string(nil), attrs...)}}
	}
	return keys
}

// IsSuperkey reports whether attrs determine the whole heading.
func IsSuperkey(attrs, heading []string, fds []models.FunctionalDependency) bool {
	return CoversAll(attrs, heading, fds)
}

// greedyKey removes attributes one at a time while coverage holds, yielding
// one minimal key without enumerating the full lattice.
func greedyKey(core, middle, attrs []string, fds []models.FunctionalDependency) models.CandidateKey {
	key := append(append([]string(nil), core...), middle...)
	for i := 0; i < len(key); i++ {
		if len(key) == 1 {
			break
		}
		reduced := make([]string, 0, len(key)-1)
		reduced = append(reduced, key[:i]...)
		reduced = append(reduced, key[i+1:]...)
		if CoversAll(reduced, attrs, fds) {
			key = reduced
			i--
		}
	}
	return models.CandidateKey{Attributes: key}
}

// combinations calls fn for each size-k combination of attrs, in positional
// order so results are deterministic.
func combinations(attrs []string, k int, fn func([]string)) {
	combo := make([]string, 0, k)
	var walk func(start int)
	walk = func(start int) {
		if len(combo) == k {
			out := make([]string, k)
			copy(out, combo)
			fn(out)
			return
		}
		for i := start; i <= len(attrs)-(k-len(combo)); i++ {
			combo = append(combo, attrs[i])
			walk(i + 1)
			combo = combo[:len(combo)-1]
		}
	}
	walk(0)
}

func containsAll(set, subset []string) bool {
	m := make(map[string]struct{}, len(set))
	for _, a := range set {
		m[a] = struct{}{}
	}
	for _, a := range subset {
		if _, ok := m[a]; !ok {
			return false
		}
	}
	return true
}

func dedupeStrings(attrs []string) []string {
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

func joinSorted(attrs []string) string {
	sorted := append([]string(nil), attrs...)
	sort.Strings(sorted)
	key := ""
	for i, a := range sorted {
		if i > 0 {
			key += "\x1f"
		}
		key += a
	}
	return key
}
