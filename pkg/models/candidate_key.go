package models

import "strings"

// CandidateKey is a minimal attribute set whose values uniquely identify
// each row. No proper subset of it is itself a key.
type CandidateKey struct {
	Attributes []string `json:"attributes" yaml:"attributes"`
	// Declared marks a key supplied by the caller or read from a live
	// schema, as opposed to one discovered from data. Partial-dependency
	// checks only trust declared keys.
	Declared bool `json:"declared,omitempty" yaml:"declared,omitempty"`
}

// Contains reports whether the key includes the named attribute.
func (k CandidateKey) Contains(name string) bool {
	for _, a := range k.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// IsComposite reports whether the key spans more than one attribute.
func (k CandidateKey) IsComposite() bool {
	return len(k.Attributes) > 1
}

// Equal reports whether two keys cover the same attribute set.
func (k CandidateKey) Equal(other CandidateKey) bool {
	return sameAttrSet(k.Attributes, other.Attributes)
}

// String renders the key as "(A, B)".
func (k CandidateKey) String() string {
	return "(" + strings.Join(k.Attributes, ", ") + ")"
}
