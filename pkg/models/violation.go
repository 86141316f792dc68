package models

// NormalForm identifies a relational normal form level.
type NormalForm string

const (
	FormNone NormalForm = "none"
	Form1NF  NormalForm = "1NF"
	Form2NF  NormalForm = "2NF"
	Form3NF  NormalForm = "3NF"
)

// ValidNormalForms contains all valid normal form values, lowest first.
var ValidNormalForms = []NormalForm{FormNone, Form1NF, Form2NF, Form3NF}

// IsValidNormalForm checks if the given form is valid.
func IsValidNormalForm(f NormalForm) bool {
	for _, v := range ValidNormalForms {
		if v == f {
			return true
		}
	}
	return false
}

// Rank orders forms: none < 1NF < 2NF < 3NF.
func (f NormalForm) Rank() int {
	switch f {
	case Form1NF:
		return 1
	case Form2NF:
		return 2
	case Form3NF:
		return 3
	default:
		return 0
	}
}

// Meets reports whether the form satisfies the target level.
func (f NormalForm) Meets(target NormalForm) bool {
	return f.Rank() >= target.Rank()
}

// Next returns the next form up, or 3NF when already there.
func (f NormalForm) Next() NormalForm {
	switch f {
	case FormNone:
		return Form1NF
	case Form1NF:
		return Form2NF
	default:
		return Form3NF
	}
}

// Violation kinds
const (
	ViolationMultiValuedCell      = "multi_valued_cell"
	ViolationRepeatingGroup       = "repeating_group"
	ViolationPartialDependency    = "partial_dependency"
	ViolationTransitiveDependency = "transitive_dependency"
)

// Violation records one reason a relation fails a target normal form,
// with the evidence a caller needs to show the offending data.
type Violation struct {
	RelationName string     `json:"relation" yaml:"relation"`
	Form         NormalForm `json:"form" yaml:"form"`
	Kind         string     `json:"kind" yaml:"kind"`
	// Attribute is the offending attribute for atomicity and repeating-group
	// violations.
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	// RowIndex and CellValue locate an example non-atomic cell.
	RowIndex  *int    `json:"row_index,omitempty" yaml:"row_index,omitempty"`
	CellValue *string `json:"cell_value,omitempty" yaml:"cell_value,omitempty"`
	// FD is the offending dependency for partial and transitive violations.
	FD *FunctionalDependency `json:"fd,omitempty" yaml:"fd,omitempty"`
	// Chain is the key -> determinant -> attribute chain evidencing a
	// transitive dependency, when one could be reconstructed.
	Chain   []FunctionalDependency `json:"chain,omitempty" yaml:"chain,omitempty"`
	Message string                 `json:"message" yaml:"message"`
}

// ClassificationResult is the classifier's verdict for one relation.
type ClassificationResult struct {
	RelationName string      `json:"relation" yaml:"relation"`
	FormReached  NormalForm  `json:"form_reached" yaml:"form_reached"`
	Violations   []Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// ViolationsFor returns the violations recorded against the given form.
func (c *ClassificationResult) ViolationsFor(form NormalForm) []Violation {
	var out []Violation
	for _, v := range c.Violations {
		if v.Form == form {
			out = append(out, v)
		}
	}
	return out
}
