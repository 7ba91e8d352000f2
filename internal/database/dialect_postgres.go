package database

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// PostgresDialect targets PostgreSQL through lib/pq
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return DriverPostgres }

func (PostgresDialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

func (PostgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (PostgresDialect) MaxPlaceholders() int { return 65535 }

func (PostgresDialect) CurrentSchemaQuery() string { return "SELECT current_schema()" }

func (PostgresDialect) TablesQuery(schema string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, []any{schema}
}

func (PostgresDialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default,
			character_maximum_length, numeric_precision, numeric_scale,
			CASE WHEN is_generated = 'ALWAYS' THEN 'YES' ELSE 'NO' END,
			CASE WHEN is_identity = 'YES' THEN identity_generation END
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, []any{schema, table}
}

func (PostgresDialect) PrimaryKeyQuery(schema, table string) (string, []any) {
	return `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, []any{schema, table}
}

// ForeignKeysQuery pairs local and referenced columns through
// position_in_unique_constraint so composite keys line up.
func (PostgresDialect) ForeignKeysQuery(schema, table string) (string, []any) {
	return `SELECT kcu.constraint_name, kcu.column_name, ref.table_name, ref.column_name
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = rc.constraint_schema
			AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage ref
			ON ref.constraint_schema = rc.unique_constraint_schema
			AND ref.constraint_name = rc.unique_constraint_name
			AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema = $1 AND kcu.table_name = $2
		ORDER BY kcu.constraint_name, kcu.ordinal_position`, []any{schema, table}
}

func (PostgresDialect) VersionQuery() string { return "SELECT version()" }

// DeferConstraintsSQL defers every deferrable constraint to commit time
func (PostgresDialect) DeferConstraintsSQL() []string {
	return []string{"SET CONSTRAINTS ALL DEFERRED"}
}

func (PostgresDialect) ResetSessionSQL() []string { return nil }

func (d PostgresDialect) ClearTableSQL(table string) string {
	return "TRUNCATE TABLE " + d.QuoteIdentifier(table) + " CASCADE"
}

func (PostgresDialect) OverridingClause() string { return "OVERRIDING SYSTEM VALUE" }

// ResetSequenceSQL points the serial or identity sequence of table.column at the
// largest restored value, or back to its start when the table is empty. Columns
// without a sequence make setval a no-op.
func (d PostgresDialect) ResetSequenceSQL(table, column string) (string, []any) {
	col := d.QuoteIdentifier(column)
	query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence($1, $2), COALESCE(MAX(%[1]s), 1), MAX(%[1]s) IS NOT NULL) FROM %[2]s`,
		col, d.QuoteIdentifier(table))
	return query, []any{d.QuoteIdentifier(table), column}
}

func (d PostgresDialect) SelectExpr(column, _ string) string { return d.QuoteIdentifier(column) }

func (PostgresDialect) NormalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}
