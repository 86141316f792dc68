package models

// Relation is the in-memory representation of one table: ordered attributes,
// data rows, and the dependency set other components populate.
//
// Attribute order matters only for display; rows are positionally aligned to
// it. Decomposition never edits a relation in place, it builds new ones.
type Relation struct {
	Name       string                 `json:"name" yaml:"name"`
	Attributes []Attribute            `json:"attributes" yaml:"attributes"`
	Rows       [][]Value              `json:"rows,omitempty" yaml:"rows,omitempty"`
	FDs        []FunctionalDependency `json:"fds,omitempty" yaml:"fds,omitempty"`
	Keys       []CandidateKey         `json:"candidate_keys,omitempty" yaml:"candidate_keys,omitempty"`
}

// AttributeNames returns the attribute names in declaration order.
func (r *Relation) AttributeNames() []string {
	names := make([]string, len(r.Attributes))
	for i, a := range r.Attributes {
		names[i] = a.Name
	}
	return names
}

// AttributeIndex returns the position of the named attribute, or -1.
func (r *Relation) AttributeIndex(name string) int {
	for i, a := range r.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// HasAttribute reports whether the relation contains the named attribute.
func (r *Relation) HasAttribute(name string) bool {
	return r.AttributeIndex(name) >= 0
}

// Attribute returns the named attribute, or nil.
func (r *Relation) Attribute(name string) *Attribute {
	if i := r.AttributeIndex(name); i >= 0 {
		return &r.Attributes[i]
	}
	return nil
}

// NumRows returns the number of data rows.
func (r *Relation) NumRows() int {
	return len(r.Rows)
}

// Row returns the i-th data row. The caller must not mutate it.
func (r *Relation) Row(i int) []Value {
	return r.Rows[i]
}

// ValueAt returns the value of the named attribute in the i-th row.
func (r *Relation) ValueAt(i int, name string) Value {
	idx := r.AttributeIndex(name)
	if idx < 0 || i < 0 || i >= len(r.Rows) {
		return NullValue()
	}
	return r.Rows[i][idx]
}

// ForEachRow iterates rows in order, stopping early when fn returns false.
// Iteration is restartable: each call walks from the first row again.
func (r *Relation) ForEachRow(fn func(i int, row []Value) bool) {
	for i, row := range r.Rows {
		if !fn(i, row) {
			return
		}
	}
}

// NonKeyAttributes returns the names of attributes that appear in no
// candidate key (the non-prime attributes).
func (r *Relation) NonKeyAttributes() []string {
	var out []string
	for _, a := range r.Attributes {
		if !r.IsPrime(a.Name) {
			out = append(out, a.Name)
		}
	}
	return out
}

// IsPrime reports whether the named attribute is part of any candidate key.
func (r *Relation) IsPrime(name string) bool {
	for _, k := range r.Keys {
		for _, a := range k.Attributes {
			if a == name {
				return true
			}
		}
	}
	return false
}

// PrimaryKey returns the first candidate key, the one decomposition treats
// as the primary key, or nil when no key is known.
func (r *Relation) PrimaryKey() *CandidateKey {
	if len(r.Keys) == 0 {
		return nil
	}
	return &r.Keys[0]
}
