package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"mysql", "postgres", "postgresql", "pq", "sqlite3", "sqlite"} {
		d, err := DialectFor(name)
		require.NoError(t, err, name)
		assert.NotNil(t, d)
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`order`", MySQLDialect{}.QuoteIdentifier("order"))
	assert.Equal(t, "`we``ird`", MySQLDialect{}.QuoteIdentifier("we`ird"))
	assert.Equal(t, `"order"`, PostgresDialect{}.QuoteIdentifier("order"))
	assert.Equal(t, `"we""ird"`, PostgresDialect{}.QuoteIdentifier(`we"ird`))
	assert.Equal(t, `"we""ird"`, SQLiteDialect{}.QuoteIdentifier(`we"ird`))
}

func TestSelectPageSQL(t *testing.T) {
	assert.Equal(t,
		"SELECT `id`, `total` FROM `orders` ORDER BY `id` LIMIT ? OFFSET ?",
		SelectPageSQL(MySQLDialect{}, "orders", []SelectColumn{{"id", "int"}, {"total", "decimal"}}, []string{"id"}))

	assert.Equal(t,
		`SELECT "order_id", "line", "shipped_at" FROM "order_items" ORDER BY "order_id", "line" LIMIT $1 OFFSET $2`,
		SelectPageSQL(PostgresDialect{}, "order_items",
			[]SelectColumn{{"order_id", "integer"}, {"line", "integer"}, {"shipped_at", "timestamp without time zone"}},
			[]string{"order_id", "line"}))

	assert.Equal(t,
		`SELECT "id", CASE WHEN typeof("due") = 'text' THEN CAST("due" AS TEXT) ELSE "due" END AS "due" FROM "bills" ORDER BY "id" LIMIT ? OFFSET ?`,
		SelectPageSQL(SQLiteDialect{}, "bills", []SelectColumn{{"id", "INTEGER"}, {"due", "DATE"}}, []string{"id"}))
}

func TestSelectAllSQL(t *testing.T) {
	assert.Equal(t,
		`SELECT "payload", "origin" FROM "events"`,
		SelectAllSQL(PostgresDialect{}, "events", []SelectColumn{{"payload", "json"}, {"origin", "point"}}))

	assert.Equal(t, `SELECT * FROM "log"`, SelectAllSQL(SQLiteDialect{}, "log", nil))
}

func TestSelectExpr(t *testing.T) {
	tests := []struct {
		dataType string
		cast     bool
	}{
		{"DATE", true},
		{"datetime", true},
		{"TIMESTAMP", true},
		{"TIME", true},
		{"TEXT", false},
		{"INTEGER", false},
		{"BLOB", false},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			expr := SQLiteDialect{}.SelectExpr("c", tt.dataType)
			if tt.cast {
				assert.Contains(t, expr, `CAST("c" AS TEXT)`)
				assert.Contains(t, expr, `AS "c"`)
			} else {
				assert.Equal(t, `"c"`, expr)
			}
		})
	}

	assert.Equal(t, "`due`", MySQLDialect{}.SelectExpr("due", "date"))
	assert.Equal(t, `"due"`, PostgresDialect{}.SelectExpr("due", "date"))
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO `users` (`id`, `name`) VALUES (?, ?), (?, ?)",
		InsertSQL(MySQLDialect{}, "users", []string{"id", "name"}, 2, false))

	assert.Equal(t,
		`INSERT INTO "users" ("id", "name") VALUES ($1, $2), ($3, $4), ($5, $6)`,
		InsertSQL(PostgresDialect{}, "users", []string{"id", "name"}, 3, false))

	assert.Equal(t,
		`INSERT INTO "users" ("id", "name") OVERRIDING SYSTEM VALUE VALUES ($1, $2)`,
		InsertSQL(PostgresDialect{}, "users", []string{"id", "name"}, 1, true))

	assert.Equal(t,
		"INSERT INTO `users` (`id`) VALUES (?)",
		InsertSQL(MySQLDialect{}, "users", []string{"id"}, 1, true))
}

func TestResetSequenceSQL(t *testing.T) {
	stmt, args := PostgresDialect{}.ResetSequenceSQL("Orders", "id")
	assert.Equal(t,
		`SELECT setval(pg_get_serial_sequence($1, $2), COALESCE(MAX("id"), 1), MAX("id") IS NOT NULL) FROM "Orders"`,
		stmt)
	assert.Equal(t, []any{`"Orders"`, "id"}, args)

	stmt, _ = MySQLDialect{}.ResetSequenceSQL("orders", "id")
	assert.Empty(t, stmt)
	stmt, _ = SQLiteDialect{}.ResetSequenceSQL("orders", "id")
	assert.Empty(t, stmt)
}

func TestBatchSize(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		columns  int
		pageSize int
		want     int
	}{
		{"page size wins", PostgresDialect{}, 10, 5000, 5000},
		{"bind limit wins", PostgresDialect{}, 20, 5000, 3276},
		{"sqlite limit", SQLiteDialect{}, 10, 5000, 3276},
		{"no columns", MySQLDialect{}, 0, 5000, 5000},
		{"zero page size", MySQLDialect{}, 5, 0, 13107},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BatchSize(tt.dialect, tt.columns, tt.pageSize))
		})
	}
}

func TestClearTableSQL(t *testing.T) {
	assert.Equal(t, "DELETE FROM `users`", MySQLDialect{}.ClearTableSQL("users"))
	assert.Equal(t, `TRUNCATE TABLE "users" CASCADE`, PostgresDialect{}.ClearTableSQL("users"))
	assert.Equal(t, `DELETE FROM "users"`, SQLiteDialect{}.ClearTableSQL("users"))
}

func TestDeferConstraints(t *testing.T) {
	assert.Equal(t, []string{"SET CONSTRAINTS ALL DEFERRED"}, PostgresDialect{}.DeferConstraintsSQL())
	assert.Equal(t, []string{"SET FOREIGN_KEY_CHECKS = 0"}, MySQLDialect{}.DeferConstraintsSQL())
	assert.Equal(t, []string{"SET FOREIGN_KEY_CHECKS = 1"}, MySQLDialect{}.ResetSessionSQL())
	assert.Equal(t, []string{"PRAGMA defer_foreign_keys = ON"}, SQLiteDialect{}.DeferConstraintsSQL())
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 123000000, time.UTC)

	assert.Equal(t, "2024-03-05 10:30:00.123", MySQLDialect{}.NormalizeValue(ts))
	assert.Equal(t, "2024-03-05T10:30:00.123Z", PostgresDialect{}.NormalizeValue(ts))
	assert.Equal(t, "2024-03-05 10:30:00.123+00:00", SQLiteDialect{}.NormalizeValue(ts))
	assert.Equal(t, int64(7), MySQLDialect{}.NormalizeValue(int64(7)))
}
