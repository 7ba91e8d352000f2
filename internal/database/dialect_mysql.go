package database

import (
	"strings"
	"time"
)

// MySQLDialect targets MySQL and MariaDB through go-sql-driver/mysql
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return DriverMySQL }

func (MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDialect) Placeholder(int) string { return "?" }

func (MySQLDialect) MaxPlaceholders() int { return 65535 }

func (MySQLDialect) CurrentSchemaQuery() string { return "SELECT DATABASE()" }

func (MySQLDialect) TablesQuery(schema string) (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`, []any{schema}
}

func (MySQLDialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
			CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE,
			CASE WHEN EXTRA LIKE '%VIRTUAL GENERATED%' OR EXTRA LIKE '%STORED GENERATED%' THEN 'YES' ELSE 'NO' END,
			CASE WHEN EXTRA LIKE '%auto_increment%' THEN 'BY DEFAULT' END
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}

func (MySQLDialect) PrimaryKeyQuery(schema, table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}

func (MySQLDialect) ForeignKeysQuery(schema, table string) (string, []any) {
	return `SELECT CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`, []any{schema, table}
}

func (MySQLDialect) VersionQuery() string { return "SELECT VERSION()" }

// DeferConstraintsSQL disables foreign key checks for the session. MySQL has no
// deferred constraint mode and TRUNCATE would commit the open transaction.
// Rows inserted while checks are off are not re-validated when they are turned
// back on, so dangling references in an archive survive the restore.
func (MySQLDialect) DeferConstraintsSQL() []string {
	return []string{"SET FOREIGN_KEY_CHECKS = 0"}
}

func (MySQLDialect) ResetSessionSQL() []string {
	return []string{"SET FOREIGN_KEY_CHECKS = 1"}
}

func (d MySQLDialect) ClearTableSQL(table string) string {
	return "DELETE FROM " + d.QuoteIdentifier(table)
}

func (MySQLDialect) OverridingClause() string { return "" }

// ResetSequenceSQL is empty: InnoDB moves AUTO_INCREMENT past explicit values.
func (MySQLDialect) ResetSequenceSQL(string, string) (string, []any) { return "", nil }

func (d MySQLDialect) SelectExpr(column, _ string) string { return d.QuoteIdentifier(column) }

// NormalizeValue renders timestamps in the literal format DATETIME columns accept
func (MySQLDialect) NormalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("2006-01-02 15:04:05.999999")
	}
	return v
}
