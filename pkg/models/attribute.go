package models

// AttributeDomain classifies the inferred primitive domain of an attribute.
type AttributeDomain string

const (
	DomainText        AttributeDomain = "text"
	DomainNumber      AttributeDomain = "number"
	DomainDate        AttributeDomain = "date"
	DomainCategorical AttributeDomain = "categorical"
)

// ValidAttributeDomains contains all valid attribute domain values.
var ValidAttributeDomains = []AttributeDomain{
	DomainText,
	DomainNumber,
	DomainDate,
	DomainCategorical,
}

// IsValidAttributeDomain checks if the given domain is valid.
func IsValidAttributeDomain(d AttributeDomain) bool {
	for _, v := range ValidAttributeDomains {
		if v == d {
			return true
		}
	}
	return false
}

// Attribute describes one column of a relation.
type Attribute struct {
	Name     string          `json:"name" yaml:"name"`
	Domain   AttributeDomain `json:"domain" yaml:"domain"`
	Nullable bool            `json:"nullable" yaml:"nullable"`
	// DeclaredType carries the declared SQL type when the relation was built
	// from a declared schema rather than inferred from data.
	DeclaredType *string `json:"declared_type,omitempty" yaml:"declared_type,omitempty"`
}
