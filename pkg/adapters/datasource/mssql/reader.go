package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/audit"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/logging"
	"github.com/relnorm/relnorm-engine/pkg/retry"
	sqlutil "github.com/relnorm/relnorm-engine/pkg/sql"
)

const readerType = "mssql"

// defaultSchema is what SQL Server resolves unqualified names against.
const defaultSchema = "dbo"

// Reader samples tables and key metadata from SQL Server.
type Reader struct {
	config  *Config
	db      *sql.DB
	logger  *zap.Logger
	auditor *audit.SecurityAuditor
}

// NewReader connects to SQL Server and verifies the connection.
// Transient connection failures are retried with jittered exponential
// backoff; queries issued after the connection is up are not retried.
// If logger is nil, a no-op logger is used.
func NewReader(ctx context.Context, cfg *Config, logger *zap.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectionTimeout)*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}); err != nil {
		db.Close()
		// Driver errors echo the DSN, so the log line is sanitized.
		logger.Warn("SQL Server connection failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	r := &Reader{
		config:  cfg,
		db:      db,
		logger:  logger.Named("mssql-reader"),
		auditor: audit.NewSecurityAuditor(logger),
	}
	r.auditor.LogDatasourceConnect(readerType, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	return r, nil
}

// connectionString builds a sqlserver:// URL for SQL authentication.
// Inside Docker, loopback hosts are rewritten to host.docker.internal so the
// reader can reach a database on the host machine.
func connectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		config.DatasourceHost(cfg.Host),
		cfg.Port,
		query.Encode(),
	)
}

// ListTables returns all user tables (excludes system schemas).
func (r *Reader) ListTables(ctx context.Context) ([]datasource.TableRef, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableRef
	for rows.Next() {
		var ref datasource.TableRef
		if err := rows.Scan(&ref.Schema, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// ReadTable samples up to limit rows from a table. The limit is clamped to
// datasource.MaxSampleRows. Schema and table names are screened before they
// are interpolated; rejections surface as apperrors.ErrUnsafeIdentifier.
func (r *Reader) ReadTable(ctx context.Context, schema, table string, limit int) (*datasource.Dataset, error) {
	if schema == "" {
		schema = defaultSchema
	}
	if err := r.screen(schema, table); err != nil {
		return nil, err
	}
	limit = datasource.ClampSampleLimit(limit)

	exists, err := r.tableExists(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s.%s", apperrors.ErrTableNotFound, schema, table)
	}

	// NOLOCK keeps analysis reads from blocking writers. Dirty reads are
	// acceptable for sampling.
	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT TOP (%d) * FROM %s WITH (NOLOCK)
	`, limit, sqlutil.QualifyMSSQL(schema, table))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns for %s.%s: %w", schema, table, err)
	}

	ds := &datasource.Dataset{Columns: columns}
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row from %s.%s: %w", schema, table, err)
		}
		for i, cell := range cells {
			cells[i] = normalizeCell(cell)
		}
		ds.Rows = append(ds.Rows, cells)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %s.%s: %w", schema, table, err)
	}

	r.auditor.LogTableSample(readerType, schema, table, ds.NumRows())
	r.logger.Debug("Table sampled",
		zap.String("schema", schema),
		zap.String("table", table),
		zap.Int("rows", ds.NumRows()),
		zap.Int("limit", limit))

	return ds, nil
}

// TableKeys returns the primary key and unique index column sets for a table.
func (r *Reader) TableKeys(ctx context.Context, schema, table string) ([]datasource.DeclaredKey, error) {
	if schema == "" {
		schema = defaultSchema
	}
	if err := r.screen(schema, table); err != nil {
		return nil, err
	}

	var keys []datasource.DeclaredKey

	pk, err := r.primaryKey(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if pk != nil {
		keys = append(keys, *pk)
	}

	unique, err := r.uniqueIndexes(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	keys = append(keys, unique...)

	return keys, nil
}

// primaryKey reads the primary key constraint, columns in key order.
// Returns nil when the table has no primary key.
func (r *Reader) primaryKey(ctx context.Context, schema, table string) (*datasource.DeclaredKey, error) {
	query := `
	SET NOCOUNT ON;
	SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	    ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
	    AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
	    AND tc.TABLE_NAME = kcu.TABLE_NAME
	WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
	  AND tc.TABLE_SCHEMA = @schema
	  AND tc.TABLE_NAME = @table
	ORDER BY kcu.ORDINAL_POSITION
	`

	rows, err := r.db.QueryContext(ctx, query,
		sql.Named("schema", schema),
		sql.Named("table", table),
	)
	if err != nil {
		return nil, fmt.Errorf("query primary key: %w", err)
	}
	defer rows.Close()

	var key *datasource.DeclaredKey
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		if key == nil {
			key = &datasource.DeclaredKey{Name: name, Primary: true, Unique: true}
		}
		key.Columns = append(key.Columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key rows: %w", err)
	}

	return key, nil
}

// uniqueIndexes reads unique index column sets, excluding the primary key.
// Filtered indexes are skipped: they only constrain the rows they cover.
func (r *Reader) uniqueIndexes(ctx context.Context, schema, table string) ([]datasource.DeclaredKey, error) {
	query := `
	SET NOCOUNT ON;
	SELECT i.name AS index_name, c.name AS column_name
	FROM sys.indexes i
	INNER JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
	INNER JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
	WHERE i.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	  AND i.is_unique = 1
	  AND i.is_primary_key = 0
	  AND i.has_filter = 0
	  AND ic.is_included_column = 0
	ORDER BY i.name, ic.key_ordinal
	`

	rows, err := r.db.QueryContext(ctx, query,
		sql.Named("schema", schema),
		sql.Named("table", table),
	)
	if err != nil {
		return nil, fmt.Errorf("query unique indexes: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]int)
	var keys []datasource.DeclaredKey
	for rows.Next() {
		var index, column string
		if err := rows.Scan(&index, &column); err != nil {
			return nil, fmt.Errorf("scan unique index row: %w", err)
		}
		i, ok := byName[index]
		if !ok {
			i = len(keys)
			byName[index] = i
			keys = append(keys, datasource.DeclaredKey{Name: index, Unique: true})
		}
		keys[i].Columns = append(keys[i].Columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unique index rows: %w", err)
	}

	return keys, nil
}

// tableExists checks the catalog so unknown tables surface as
// apperrors.ErrTableNotFound instead of a raw driver error.
func (r *Reader) tableExists(ctx context.Context, schema, table string) (bool, error) {
	query := `
	SET NOCOUNT ON;
	SELECT COUNT(*)
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = @schema AND TABLE_NAME = @table AND TABLE_TYPE = 'BASE TABLE'
	`

	var count int
	err := r.db.QueryRowContext(ctx, query,
		sql.Named("schema", schema),
		sql.Named("table", table),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return count > 0, nil
}

// screen rejects schema and table names that fail identifier checks before
// they reach query construction. Identifiers name objects, so they cannot be
// bound as parameters; every rejection is audit-logged.
func (r *Reader) screen(schema, table string) error {
	checks := []struct {
		position string
		name     string
	}{
		{"schema", schema},
		{"table", table},
	}
	for _, check := range checks {
		if result := sqlutil.CheckIdentifier(check.name); result != nil {
			r.auditor.LogUnsafeIdentifier(readerType, audit.IdentifierRejectionDetails{
				Identifier:  result.Identifier,
				Position:    check.position,
				Reason:      result.Reason,
				Fingerprint: result.Fingerprint,
			})
			return fmt.Errorf("%w: %s %q: %s",
				apperrors.ErrUnsafeIdentifier, check.position, check.name, result.Reason)
		}
	}
	return nil
}

// normalizeCell converts driver values into plain scalars. go-mssqldb hands
// back character data as []byte for some column types.
func normalizeCell(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Close releases the database connection.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ensure Reader implements datasource.TableReader at compile time.
var _ datasource.TableReader = (*Reader)(nil)
