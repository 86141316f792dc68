package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/audit"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/logging"
	"github.com/relnorm/relnorm-engine/pkg/retry"
	sqlutil "github.com/relnorm/relnorm-engine/pkg/sql"
)

const readerType = "postgres"

// defaultSchema is the head of the default search_path.
const defaultSchema = "public"

// Reader samples tables and key metadata from PostgreSQL.
type Reader struct {
	config  *Config
	pool    *pgxpool.Pool
	logger  *zap.Logger
	auditor *audit.SecurityAuditor
}

// NewReader connects to PostgreSQL and verifies the connection.
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

	pool, err := pgxpool.New(ctx, connectionString(cfg))
	if err != nil {
		// Driver parse errors echo the DSN, so the log line is sanitized.
		logger.Warn("Postgres pool setup failed",
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return pool.Ping(ctx)
	}); err != nil {
		pool.Close()
		logger.Warn("Postgres connection failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	r := &Reader{
		config:  cfg,
		pool:    pool,
		logger:  logger.Named("postgres-reader"),
		auditor: audit.NewSecurityAuditor(logger),
	}
	r.auditor.LogDatasourceConnect(readerType, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	return r, nil
}

// connectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped to handle special characters in
// passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
// Inside Docker, loopback hosts are rewritten to host.docker.internal so the
// reader can reach a database on the host machine.
func connectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.DatasourceHost(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// ListTables returns all user tables (excludes system schemas).
func (r *Reader) ListTables(ctx context.Context) ([]datasource.TableRef, error) {
	const query = `
		SELECT t.table_schema, t.table_name
		FROM information_schema.tables t
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableRef
	for rows.Next() {
		var ref datasource.TableRef
		if err := rows.Scan(&ref.Schema, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
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

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", sqlutil.QualifyPostgres(schema, table), limit)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	ds := &datasource.Dataset{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row from %s.%s: %w", schema, table, err)
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = normalizeCell(v)
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
// Partial and expression indexes are skipped: a partial index only constrains
// the rows it covers, and an expression element is not a column.
func (r *Reader) TableKeys(ctx context.Context, schema, table string) ([]datasource.DeclaredKey, error) {
	if schema == "" {
		schema = defaultSchema
	}
	if err := r.screen(schema, table); err != nil {
		return nil, err
	}

	const query = `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisprimary AS is_primary
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND ix.indisunique = true
		  AND ix.indpred IS NULL
		  AND ix.indexprs IS NULL
		ORDER BY ix.indisprimary DESC, i.relname, array_position(ix.indkey::int2[], a.attnum)
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]int)
	var keys []datasource.DeclaredKey
	for rows.Next() {
		var index, column string
		var primary bool
		if err := rows.Scan(&index, &column, &primary); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		i, ok := byName[index]
		if !ok {
			i = len(keys)
			byName[index] = i
			keys = append(keys, datasource.DeclaredKey{Name: index, Primary: primary, Unique: true})
		}
		keys[i].Columns = append(keys[i].Columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key rows: %w", err)
	}

	return keys, nil
}

// tableExists checks the catalog so unknown tables surface as
// apperrors.ErrTableNotFound instead of a raw driver error.
func (r *Reader) tableExists(ctx context.Context, schema, table string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
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

// normalizeCell converts pgx-specific values into plain scalars. Numerics
// become float64, uuids become their text form, and raw bytes become text.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if f, err := x.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		if s, err := x.Value(); err == nil {
			return s
		}
		return nil
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	case int16:
		return int64(x)
	}
	return v
}

// Close releases the connection pool.
func (r *Reader) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Ensure Reader implements datasource.TableReader at compile time.
var _ datasource.TableReader = (*Reader)(nil)
