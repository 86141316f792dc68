// Package sql provides identifier screening and quoting utilities for
// building catalog and sampling queries against relational datasources.
package sql

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// MaxIdentifierLength is the longest identifier accepted for interpolation
// into a query. SQL Server caps identifiers at 128 characters; PostgreSQL
// truncates above 63, so anything longer is suspect on either engine.
const MaxIdentifierLength = 128

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IdentifierCheckResult contains the result of screening a schema, table,
// or column name before it is interpolated into a query.
type IdentifierCheckResult struct {
	Identifier  string // The value that was checked
	Reason      string // Human-readable reason the identifier was rejected
	Fingerprint string // libinjection fingerprint, when a pattern was detected
}

// CheckIdentifier screens a schema, table, or column name for use in a
// generated query. Identifiers cannot be bound as query parameters, so every
// name taken from user input or catalog metadata is screened before it is
// quoted and interpolated.
//
// Returns nil if the identifier is safe, or an IdentifierCheckResult with
// details about the rejection.
//
// Example:
//
//	// Safe identifier
//	result := CheckIdentifier("customer_orders")
//	// result == nil
//
//	// Injection attempt
//	result := CheckIdentifier("orders; DROP TABLE users--")
//	// result.Reason == "identifier contains characters outside [A-Za-z0-9_]"
func CheckIdentifier(name string) *IdentifierCheckResult {
	if strings.TrimSpace(name) == "" {
		return &IdentifierCheckResult{Identifier: name, Reason: "identifier is empty"}
	}
	if len(name) > MaxIdentifierLength {
		return &IdentifierCheckResult{
			Identifier: name,
			Reason:     fmt.Sprintf("identifier exceeds %d characters", MaxIdentifierLength),
		}
	}

	// libinjection catches quoted and commented payloads that a shape check
	// alone would describe less usefully in audit events.
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return &IdentifierCheckResult{
			Identifier:  name,
			Reason:      "identifier matches a SQL injection pattern",
			Fingerprint: string(fingerprint),
		}
	}

	if !identifierPattern.MatchString(name) {
		return &IdentifierCheckResult{
			Identifier: name,
			Reason:     "identifier contains characters outside [A-Za-z0-9_]",
		}
	}

	return nil
}

// CheckIdentifiers screens a list of identifiers and returns a result for
// each one that failed. Returns an empty slice if all names are clean.
func CheckIdentifiers(names ...string) []*IdentifierCheckResult {
	var results []*IdentifierCheckResult
	for _, name := range names {
		if result := CheckIdentifier(name); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// QuoteMSSQL wraps an identifier in square brackets for SQL Server,
// escaping any closing brackets in the name.
func QuoteMSSQL(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QuotePostgres wraps an identifier in double quotes for PostgreSQL,
// escaping any embedded double quotes.
func QuotePostgres(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyMSSQL builds a bracket-quoted schema.table reference.
func QualifyMSSQL(schema, table string) string {
	return QuoteMSSQL(schema) + "." + QuoteMSSQL(table)
}

// QualifyPostgres builds a double-quoted schema.table reference.
func QualifyPostgres(schema, table string) string {
	return QuotePostgres(schema) + "." + QuotePostgres(table)
}
