package models

import "gopkg.in/yaml.v3"

// ForeignKeyLink records a reference created by decomposition: the reduced
// parent keeps the determinant columns and points at the extracted relation
// that now owns them.
type ForeignKeyLink struct {
	FromRelation string   `json:"from_relation" yaml:"from_relation"`
	FromColumns  []string `json:"from_columns" yaml:"from_columns"`
	ToRelation   string   `json:"to_relation" yaml:"to_relation"`
	ToColumns    []string `json:"to_columns" yaml:"to_columns"`
}

// DecompositionStep summarizes one repair pass.
type DecompositionStep struct {
	From    NormalForm `json:"from" yaml:"from"`
	To      NormalForm `json:"to" yaml:"to"`
	Created []string   `json:"created" yaml:"created"`
	Note    string     `json:"note,omitempty" yaml:"note,omitempty"`
}

// DecompositionResult is the outcome of normalizing one relation: the new
// relations in dependency order (key-holding parents before the relations
// that reference them), plus the mapping collaborators need to render or
// script the schema.
type DecompositionResult struct {
	SourceRelation string      `json:"source_relation" yaml:"source_relation"`
	Target         NormalForm  `json:"target" yaml:"target"`
	Relations      []*Relation `json:"relations" yaml:"relations"`
	// AttributeMap maps each original attribute to the relation(s) now
	// holding it.
	AttributeMap map[string][]string `json:"attribute_map" yaml:"attribute_map"`
	ForeignKeys  []ForeignKeyLink    `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Steps        []DecompositionStep `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// RelationNames returns output relation names in emission order.
func (d *DecompositionResult) RelationNames() []string {
	names := make([]string, len(d.Relations))
	for i, r := range d.Relations {
		names[i] = r.Name
	}
	return names
}

// RelationByName returns the named output relation, or nil.
func (d *DecompositionResult) RelationByName(name string) *Relation {
	for _, r := range d.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RelationSchema is the per-relation entry of the visualization contract.
type RelationSchema struct {
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
	Key        []string    `json:"key,omitempty" yaml:"key,omitempty"`
	Rows       [][]Value   `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// SchemaMap returns the serializable mapping from relation name to
// {attributes, key, rows} consumed by visualization collaborators.
func (d *DecompositionResult) SchemaMap() map[string]RelationSchema {
	out := make(map[string]RelationSchema, len(d.Relations))
	for _, r := range d.Relations {
		entry := RelationSchema{
			Attributes: r.Attributes,
			Rows:       r.Rows,
		}
		if k := r.PrimaryKey(); k != nil {
			entry.Key = k.Attributes
		}
		out[r.Name] = entry
	}
	return out
}

// YAML renders the result for collaborators that consume YAML.
func (d *DecompositionResult) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}
