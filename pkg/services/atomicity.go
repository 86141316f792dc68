package services

import (
	"regexp"
	"strings"

	"github.com/relnorm/relnorm-engine/pkg/models"
)

// multiValueSeparators are tried in order when splitting a compound cell.
// The first separator that yields more than one non-empty part wins.
var multiValueSeparators = []string{",", ";", "/", "|"}

var (
	enclosingBrackets = regexp.MustCompile(`^[\[({]\s*|\s*[\])}]$`)
	numberedSuffix    = regexp.MustCompile(`^(.*?)(\d+)$`)
)

// IsAtomicValue reports whether a cell holds a single indivisible value.
// Text containing list separators or bracket characters is treated as a
// packed list; every other kind is atomic by construction.
func IsAtomicValue(v models.Value) bool {
	if v.Kind != models.ValueText {
		return true
	}
	for _, sep := range multiValueSeparators {
		if strings.Contains(v.Text, sep) {
			return false
		}
	}
	if strings.Contains(v.Text, "[") || strings.Contains(v.Text, "]") {
		return false
	}
	return !strings.HasPrefix(strings.TrimSpace(v.Text), "{")
}

// SplitMultiValued splits a packed list cell into its parts. Enclosing
// brackets are stripped before separators are tried. Returns nil when the
// text does not split into at least two non-empty parts.
func SplitMultiValued(s string) []string {
	raw := cleanCellText(s)
	if raw == "" {
		return nil
	}
	for _, sep := range multiValueSeparators {
		if !strings.Contains(raw, sep) {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 1 {
			return parts
		}
	}
	return nil
}

// CellValues expands a cell into the atomic values it holds: one value for
// an atomic cell, several for a packed list, none for null. Split parts are
// re-parsed so "10,20" becomes two numbers.
func CellValues(v models.Value) []models.Value {
	if v.IsNull() {
		return nil
	}
	if v.Kind != models.ValueText {
		return []models.Value{v}
	}
	parts := SplitMultiValued(v.Text)
	if parts == nil {
		if cleaned := cleanCellText(v.Text); cleaned != v.Text {
			pv := models.ParseValue(cleaned)
			if pv.IsNull() {
				return nil
			}
			return []models.Value{pv}
		}
		return []models.Value{v}
	}
	out := make([]models.Value, 0, len(parts))
	for _, p := range parts {
		out = append(out, models.ParseValue(p))
	}
	return out
}

// cleanCellText trims whitespace and one pair of enclosing brackets.
func cleanCellText(s string) string {
	s = strings.TrimSpace(s)
	return enclosingBrackets.ReplaceAllString(s, "")
}

// RepeatingGroup is a family of numbered sibling attributes, such as
// Phone1 and Phone2, that models a one-to-many relationship flattened
// into the heading.
type RepeatingGroup struct {
	Base       string
	Attributes []string
}

// FindRepeatingGroups detects numbered attribute families in a heading.
// Only families with at least two members count; a lone Address1 proves
// nothing. Purely numeric names are skipped, they are almost always years.
func FindRepeatingGroups(attrNames []string) []RepeatingGroup {
	groups := make(map[string][]string)
	var order []string
	for _, name := range attrNames {
		m := numberedSuffix.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		base := strings.ToLower(strings.TrimSpace(m[1]))
		if base == "" {
			continue
		}
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], name)
	}

	var out []RepeatingGroup
	for _, base := range order {
		if attrs := groups[base]; len(attrs) > 1 {
			out = append(out, RepeatingGroup{Base: base, Attributes: attrs})
		}
	}
	return out
}
