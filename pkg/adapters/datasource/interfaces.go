package datasource

import (
	"context"
	"encoding/json"

	"github.com/relnorm/relnorm-engine/pkg/jsonutil"
)

// MaxSampleRows is the hard cap on rows read from any table.
// Dependency inference is quadratic in the worst case, so unbounded reads
// could stall the engine on large tables.
const MaxSampleRows = 50000

// Dataset is raw tabular input: ordered column names and positionally
// aligned rows. Cells are loosely typed; the relation builder coerces them.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// UnmarshalJSON decodes exported tabular JSON tolerantly: numeric column
// headers become strings and cells keep their scalar type, with integers
// preserved at full precision.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []json.RawMessage   `json:"columns"`
		Rows    [][]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Columns = make([]string, len(raw.Columns))
	for i, c := range raw.Columns {
		d.Columns[i] = jsonutil.FlexibleStringValue(c)
	}
	d.Rows = make([][]any, len(raw.Rows))
	for i, row := range raw.Rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = jsonutil.FlexibleScalar(cell)
		}
		d.Rows[i] = cells
	}
	return nil
}

// NumRows returns the number of data rows.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// TableRef identifies a table within a datasource.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// DeclaredKey is a key constraint read from the datasource catalog.
// Primary keys and unique indexes seed candidate key discovery so the
// engine does not have to rediscover what the schema already states.
type DeclaredKey struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Primary bool     `json:"primary"`
	Unique  bool     `json:"unique"`
}

// TableReader reads table samples and key metadata from a datasource.
// Each implementation owns its connection and must be closed when done.
type TableReader interface {
	// ListTables returns all user tables (excludes system schemas).
	ListTables(ctx context.Context) ([]TableRef, error)

	// ReadTable samples up to limit rows from a table.
	// A limit <= 0 or above MaxSampleRows is clamped to MaxSampleRows.
	// Returns apperrors.ErrUnsafeIdentifier if the schema or table name
	// fails screening, and apperrors.ErrTableNotFound for unknown tables.
	ReadTable(ctx context.Context, schema, table string, limit int) (*Dataset, error)

	// TableKeys returns declared primary keys and unique indexes for a table.
	TableKeys(ctx context.Context, schema, table string) ([]DeclaredKey, error)

	// Close releases the database connection.
	Close() error
}

// ClampSampleLimit normalizes a caller-supplied row limit.
func ClampSampleLimit(limit int) int {
	if limit <= 0 || limit > MaxSampleRows {
		return MaxSampleRows
	}
	return limit
}
