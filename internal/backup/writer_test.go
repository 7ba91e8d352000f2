package backup

import (
	"context"
	"path/filepath"
	"testing"

	"dbvault/internal/database"
	"dbvault/internal/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockEngine(t *testing.T, dialect database.Dialect) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := NewEngine(db, dialect, &Config{ArchiveDir: t.TempDir(), PageSize: 100}, WithGuard(NewGuard()))
	require.NoError(t, err)
	return engine, mock
}

func TestExportTable_SelectsStoredColumnsOnly(t *testing.T) {
	engine, mock := newMockEngine(t, database.PostgresDialect{})

	table := schema.NewTable("items")
	table.Columns = []*schema.Column{
		{Name: "id", DataType: "integer", Identity: "ALWAYS", Position: 1},
		{Name: "price", DataType: "numeric", Position: 2},
		{Name: "price_with_tax", DataType: "numeric", Generated: true, Position: 3},
	}
	table.PrimaryKey = []string{"id"}

	mock.ExpectQuery(`SELECT "id", "price" FROM "items" ORDER BY "id" LIMIT $1 OFFSET $2`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price"}).AddRow(int64(1), []byte("9.99")))

	info, err := engine.exportTable(context.Background(), table, filepath.Join(t.TempDir(), "items.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportTable_WithoutPrimaryKey(t *testing.T) {
	t.Run("orders by sortable columns", func(t *testing.T) {
		engine, mock := newMockEngine(t, database.PostgresDialect{})

		table := schema.NewTable("audit")
		table.Columns = []*schema.Column{
			{Name: "payload", DataType: "json", Position: 1},
			{Name: "at", DataType: "timestamp with time zone", Position: 2},
			{Name: "origin", DataType: "point", Position: 3},
		}

		mock.ExpectQuery(`SELECT "payload", "at", "origin" FROM "audit" ORDER BY "at" LIMIT $1 OFFSET $2`).
			WithArgs(100, 0).
			WillReturnRows(sqlmock.NewRows([]string{"payload", "at", "origin"}).
				AddRow([]byte(`{"a":1}`), "2024-01-31T10:00:00Z", []byte("(1,2)")))

		info, err := engine.exportTable(context.Background(), table, filepath.Join(t.TempDir(), "audit.json"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), info.Rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reads unsortable tables in one pass", func(t *testing.T) {
		engine, mock := newMockEngine(t, database.PostgresDialect{})

		table := schema.NewTable("events")
		table.Columns = []*schema.Column{
			{Name: "payload", DataType: "json", Position: 1},
			{Name: "origin", DataType: "point", Position: 2},
			{Name: "raw", DataType: "bytea", Position: 3},
		}

		rows := sqlmock.NewRows([]string{"payload", "origin", "raw"})
		for i := 0; i < 150; i++ {
			rows.AddRow([]byte(`{"n":1}`), []byte("(0,0)"), []byte{0x01})
		}
		mock.ExpectQuery(`SELECT "payload", "origin", "raw" FROM "events"`).WillReturnRows(rows)

		info, err := engine.exportTable(context.Background(), table, filepath.Join(t.TempDir(), "events.json"))
		require.NoError(t, err)
		assert.Equal(t, int64(150), info.Rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
