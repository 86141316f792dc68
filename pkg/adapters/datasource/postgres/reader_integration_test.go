//go:build postgres || all_adapters

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/testhelpers"
)

// seedReaderTables creates the fixture tables in the shared container.
// Names are prefixed so suites sharing the container do not collide.
func seedReaderTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS reader_order_lines (
			order_id INT NOT NULL,
			product_id INT NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(10,2) NOT NULL,
			PRIMARY KEY (order_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reader_customers (
			customer_id SERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			full_name TEXT NOT NULL,
			CONSTRAINT reader_customers_email_key UNIQUE (email)
		)`,
		`INSERT INTO reader_order_lines (order_id, product_id, quantity, unit_price) VALUES
			(1, 1, 2, 9.99),
			(1, 2, 1, 19.50),
			(2, 1, 5, 9.99),
			(2, 3, 3, 4.25),
			(3, 2, 1, 19.50)
		ON CONFLICT DO NOTHING`,
		`INSERT INTO reader_customers (email, full_name) VALUES
			('alice@example.com', 'Alice'),
			('bob@example.com', 'Bob')
		ON CONFLICT DO NOTHING`,
	}

	for _, stmt := range statements {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err, "seed statement failed: %s", stmt)
	}
}

func TestReaderIntegration(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	seedReaderTables(t, testDB.Pool)

	ctx := context.Background()
	cfg := &Config{
		Host:     testDB.Host,
		Port:     testDB.Port,
		User:     testDB.User,
		Password: testDB.Password,
		Database: testDB.Database,
		SSLMode:  "disable",
	}

	reader, err := NewReader(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err, "failed to connect to test container")
	defer reader.Close()

	t.Run("ListTables", func(t *testing.T) {
		tables, err := reader.ListTables(ctx)
		require.NoError(t, err)

		assert.Contains(t, tables, datasource.TableRef{Schema: "public", Name: "reader_customers"})
		assert.Contains(t, tables, datasource.TableRef{Schema: "public", Name: "reader_order_lines"})
	})

	t.Run("ReadTable", func(t *testing.T) {
		ds, err := reader.ReadTable(ctx, "public", "reader_order_lines", 50)
		require.NoError(t, err)

		assert.Equal(t, []string{"order_id", "product_id", "quantity", "unit_price"}, ds.Columns)
		assert.Equal(t, 5, ds.NumRows())
		for _, row := range ds.Rows {
			require.Len(t, row, 4)
			// Numerics come back as plain float64.
			assert.IsType(t, float64(0), row[3])
		}
	})

	t.Run("ReadTableHonorsLimit", func(t *testing.T) {
		ds, err := reader.ReadTable(ctx, "public", "reader_order_lines", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, ds.NumRows())
	})

	t.Run("ReadTableDefaultsSchema", func(t *testing.T) {
		ds, err := reader.ReadTable(ctx, "", "reader_customers", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"customer_id", "email", "full_name"}, ds.Columns)
		assert.Equal(t, 2, ds.NumRows())
	})

	t.Run("TableKeysCompositePrimary", func(t *testing.T) {
		keys, err := reader.TableKeys(ctx, "public", "reader_order_lines")
		require.NoError(t, err)

		require.Len(t, keys, 1)
		assert.True(t, keys[0].Primary)
		assert.True(t, keys[0].Unique)
		assert.Equal(t, []string{"order_id", "product_id"}, keys[0].Columns)
	})

	t.Run("TableKeysUniqueIndex", func(t *testing.T) {
		keys, err := reader.TableKeys(ctx, "public", "reader_customers")
		require.NoError(t, err)

		require.Len(t, keys, 2)
		// Primary key sorts first.
		assert.True(t, keys[0].Primary)
		assert.Equal(t, []string{"customer_id"}, keys[0].Columns)
		assert.False(t, keys[1].Primary)
		assert.True(t, keys[1].Unique)
		assert.Equal(t, []string{"email"}, keys[1].Columns)
	})

	t.Run("TableNotFound", func(t *testing.T) {
		_, err := reader.ReadTable(ctx, "public", "reader_missing_table", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrTableNotFound)
	})

	t.Run("UnsafeIdentifier", func(t *testing.T) {
		_, err := reader.ReadTable(ctx, "public", "reader_order_lines; DROP TABLE reader_customers--", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnsafeIdentifier)

		// The screening rejected the name before any query ran.
		keys, err := reader.TableKeys(ctx, "public", "reader_customers")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})
}
