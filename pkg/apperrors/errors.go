package apperrors

import "errors"

var (
	// ErrMalformedInput marks a structurally inconsistent dataset or
	// declaration: ragged rows, duplicate or blank attribute names, unknown
	// attributes in a declared dependency, invalid declared types or key
	// tokens.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInsufficientData marks a dataset with too few rows to infer
	// dependencies reliably (nothing can be disproved from fewer than 2).
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUnresolvableDecomposition marks a decomposition whose self-check
	// failed: the output would lose attributes, break the lossless join, or
	// still violate the target form. Surfaced instead of an incorrect schema.
	ErrUnresolvableDecomposition = errors.New("unresolvable decomposition")

	// ErrUnsafeIdentifier marks a requested schema or table identifier that
	// failed screening before query construction.
	ErrUnsafeIdentifier = errors.New("unsafe identifier")

	// ErrTableNotFound marks a requested table missing from the source.
	ErrTableNotFound = errors.New("table not found")

	// ErrUnsupportedDatasource marks a reader type with no registered
	// adapter.
	ErrUnsupportedDatasource = errors.New("unsupported datasource")
)
