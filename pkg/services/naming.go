package services

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// stripKeySuffix removes a trailing key marker from an attribute name:
// CustomerID and customer_id both reduce to the Customer stem. A bare "id"
// suffix is only stripped when it is cased as a marker, so Paid stays Paid.
func stripKeySuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suf := range []string{"_id", "_uuid", "_key"} {
		if strings.HasSuffix(lower, suf) && len(name) > len(suf) {
			return name[:len(name)-len(suf)]
		}
	}
	if (strings.HasSuffix(name, "ID") || strings.HasSuffix(name, "Id")) && len(name) > 2 {
		return name[:len(name)-2]
	}
	return name
}

// entityStem derives the singular entity name behind an attribute:
// CustomerID becomes Customer, Phones becomes Phone.
func entityStem(name string) string {
	stem := stripKeySuffix(name)
	if stem == "" {
		stem = name
	}
	stem = inflection.Singular(stem)
	if len(stem) > 0 {
		stem = strings.ToUpper(stem[:1]) + stem[1:]
	}
	return stem
}

// RelationNameFor names a relation extracted around a determinant.
// Single-attribute determinants pluralize their stem (CustomerID becomes
// Customers); composite determinants join stems and pluralize the last
// (OrderID, ProductID becomes OrderProducts).
func RelationNameFor(determinant []string) string {
	if len(determinant) == 0 {
		return ""
	}
	var b strings.Builder
	for _, attr := range determinant[:len(determinant)-1] {
		b.WriteString(entityStem(attr))
	}
	b.WriteString(inflection.Plural(entityStem(determinant[len(determinant)-1])))
	return b.String()
}

// ChildValueName names the value attribute of an extracted child relation:
// the singular stem of the packed attribute, so Phones holds Phone values.
func ChildValueName(attr string) string {
	return entityStem(attr)
}

// FallbackChildName is the collision-safe child relation name, parent and
// attribute joined the way the flat schema already spelled them.
func FallbackChildName(parent, attr string) string {
	return parent + "_" + attr
}

// SurrogateKeyName names the synthesized key attribute for a relation that
// has no candidate key of its own.
func SurrogateKeyName(relationName string) string {
	return strings.ToLower(inflection.Singular(relationName)) + "_id"
}
