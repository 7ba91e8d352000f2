package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDialect targets SQLite files through mattn/go-sqlite3
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return DriverSQLite }

func (SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLiteDialect) Placeholder(int) string { return "?" }

// MaxPlaceholders matches SQLITE_MAX_VARIABLE_NUMBER of the bundled amalgamation
func (SQLiteDialect) MaxPlaceholders() int { return 32766 }

func (SQLiteDialect) CurrentSchemaQuery() string { return "SELECT 'main'" }

func (SQLiteDialect) TablesQuery(string) (string, []any) {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, nil
}

// ColumnsQuery reads pragma_table_xinfo so generated columns are listed.
// Hidden 1 marks virtual table internals, 2 and 3 virtual and stored generated columns.
func (SQLiteDialect) ColumnsQuery(_, table string) (string, []any) {
	return `SELECT name, type, CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END, dflt_value,
			NULL, NULL, NULL,
			CASE WHEN hidden IN (2, 3) THEN 'YES' ELSE 'NO' END, NULL
		FROM pragma_table_xinfo(?)
		WHERE hidden <> 1
		ORDER BY cid`, []any{table}
}

func (SQLiteDialect) PrimaryKeyQuery(_, table string) (string, []any) {
	return `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, []any{table}
}

func (SQLiteDialect) ForeignKeysQuery(_, table string) (string, []any) {
	return `SELECT 'fk_' || id, "from", "table", COALESCE("to", '')
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`, []any{table}
}

func (SQLiteDialect) VersionQuery() string { return "SELECT sqlite_version()" }

// DeferConstraintsSQL postpones foreign key enforcement until commit. The pragma
// resets itself when the transaction ends.
func (SQLiteDialect) DeferConstraintsSQL() []string {
	return []string{"PRAGMA defer_foreign_keys = ON"}
}

func (SQLiteDialect) ResetSessionSQL() []string { return nil }

func (d SQLiteDialect) ClearTableSQL(table string) string {
	return "DELETE FROM " + d.QuoteIdentifier(table)
}

func (SQLiteDialect) OverridingClause() string { return "" }

// ResetSequenceSQL is empty: rowid allocation and sqlite_sequence follow the
// largest inserted key.
func (SQLiteDialect) ResetSequenceSQL(string, string) (string, []any) { return "", nil }

// SelectExpr reads date and time columns as stored. A bare column reference
// would let the driver parse text into time.Time and reformat it.
func (d SQLiteDialect) SelectExpr(column, dataType string) string {
	quoted := d.QuoteIdentifier(column)
	if !sqliteTimeType(dataType) {
		return quoted
	}
	return fmt.Sprintf("CASE WHEN typeof(%[1]s) = 'text' THEN CAST(%[1]s AS TEXT) ELSE %[1]s END AS %[1]s", quoted)
}

func sqliteTimeType(dataType string) bool {
	t := strings.ToLower(dataType)
	return strings.Contains(t, "date") || strings.Contains(t, "time")
}

func (SQLiteDialect) NormalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(sqlite3.SQLiteTimestampFormats[0])
	}
	return v
}
