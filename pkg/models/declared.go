package models

// KeyRole classifies a declared key annotation on a column.
type KeyRole string

const (
	KeyRoleNone    KeyRole = ""
	KeyRolePrimary KeyRole = "pk"
	KeyRoleForeign KeyRole = "fk"
	KeyRoleNatural KeyRole = "nk"
	KeyRoleUnique  KeyRole = "unique"
)

// KeySpec is the parsed form of a key annotation token.
type KeySpec struct {
	Role KeyRole `json:"role" yaml:"role"`
	// Composite marks a PK(part) token: the column is one part of a
	// composite primary key.
	Composite bool `json:"composite,omitempty" yaml:"composite,omitempty"`
	// RefTable and RefColumn carry the FK(Table.Column) target when one was
	// declared.
	RefTable  string `json:"ref_table,omitempty" yaml:"ref_table,omitempty"`
	RefColumn string `json:"ref_column,omitempty" yaml:"ref_column,omitempty"`
}

// DeclaredColumn is one column of a caller-declared schema: a name, a SQL
// type, and an optional key annotation (PK, PK(part), FK, FK(Table.Column),
// NK, UNIQUE).
type DeclaredColumn struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
}

// DeclaredTable is a caller-declared schema for one table, the trusted-mode
// alternative to inferring everything from data. FDs holds compact
// dependency expressions ("A,B -> C; D -> E").
type DeclaredTable struct {
	Name    string           `json:"name" yaml:"name"`
	Columns []DeclaredColumn `json:"columns" yaml:"columns"`
	FDs     string           `json:"fds,omitempty" yaml:"fds,omitempty"`
}

// ColumnNames returns the declared column names in order.
func (t *DeclaredTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the declared table has the named column.
func (t *DeclaredTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
