package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DB is the data-access surface the backup engine needs: pooled queries for
// introspection and export, and a dedicated connection for the restore transaction.
// *sql.DB satisfies it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Dialect captures the SQL differences between the supported engines
type Dialect interface {
	// Name is the driver name the dialect belongs to
	Name() string

	QuoteIdentifier(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) parameter
	Placeholder(n int) string
	// MaxPlaceholders is the most bind parameters a single statement may carry
	MaxPlaceholders() int

	CurrentSchemaQuery() string
	TablesQuery(schema string) (string, []any)
	// ColumnsQuery yields name, data type, nullable (YES/NO), default,
	// character length, numeric precision, numeric scale, generated (YES/NO)
	// and identity generation (ALWAYS, BY DEFAULT or NULL) in ordinal order
	ColumnsQuery(schema, table string) (string, []any)
	PrimaryKeyQuery(schema, table string) (string, []any)
	// ForeignKeysQuery yields constraint name, local column, referenced table and referenced column
	ForeignKeysQuery(schema, table string) (string, []any)
	VersionQuery() string

	// DeferConstraintsSQL runs inside the restore transaction before any table is cleared
	DeferConstraintsSQL() []string
	// ResetSessionSQL runs on the dedicated connection after the transaction ends
	ResetSessionSQL() []string
	ClearTableSQL(table string) string
	// OverridingClause goes between the column list and VALUES when rows carry
	// values for ALWAYS identity columns
	OverridingClause() string
	// ResetSequenceSQL moves the sequence behind table.column past the restored
	// rows. An empty statement means the server keeps its counters in step.
	ResetSequenceSQL(table, column string) (string, []any)

	// SelectExpr is the select-list entry that reads a column of dataType
	SelectExpr(column, dataType string) string
	// NormalizeValue converts a scanned value into its archived representation
	NormalizeValue(v any) any
}

// DialectFor returns the dialect registered for a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return MySQLDialect{}, nil
	case DriverPostgres, "pq", "postgresql":
		return PostgresDialect{}, nil
	case DriverSQLite, "sqlite":
		return SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for driver %q", driver)
	}
}

// SelectColumn is one column read by an export query
type SelectColumn struct {
	Name     string
	DataType string
}

// SelectPageSQL builds the paginated export query for a table. Rows are ordered
// by orderBy, which must be non-empty, so pages are stable.
func SelectPageSQL(d Dialect, table string, columns []SelectColumn, orderBy []string) string {
	quoted := make([]string, len(orderBy))
	for i, col := range orderBy {
		quoted[i] = d.QuoteIdentifier(col)
	}

	var b strings.Builder
	b.WriteString(SelectAllSQL(d, table, columns))
	fmt.Fprintf(&b, " ORDER BY %s LIMIT %s OFFSET %s", strings.Join(quoted, ", "), d.Placeholder(1), d.Placeholder(2))
	return b.String()
}

// SelectAllSQL reads every row of a table in one unordered pass
func SelectAllSQL(d Dialect, table string, columns []SelectColumn) string {
	list := "*"
	if len(columns) > 0 {
		exprs := make([]string, len(columns))
		for i, col := range columns {
			exprs[i] = d.SelectExpr(col.Name, col.DataType)
		}
		list = strings.Join(exprs, ", ")
	}
	return fmt.Sprintf("SELECT %s FROM %s", list, d.QuoteIdentifier(table))
}

// InsertSQL builds a multi-row INSERT for rowCount rows of the given columns.
// overriding adds the dialect's clause for explicit identity values.
func InsertSQL(d Dialect, table string, columns []string, rowCount int, overriding bool) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.QuoteIdentifier(col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) ", d.QuoteIdentifier(table), strings.Join(quoted, ", "))
	if clause := d.OverridingClause(); overriding && clause != "" {
		b.WriteString(clause)
		b.WriteByte(' ')
	}
	b.WriteString("VALUES ")

	n := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// BatchSize caps rows per INSERT so the statement stays under the dialect's bind limit
func BatchSize(d Dialect, columnCount, pageSize int) int {
	if columnCount <= 0 {
		return pageSize
	}
	limit := d.MaxPlaceholders() / columnCount
	if limit < 1 {
		limit = 1
	}
	if pageSize > 0 && pageSize < limit {
		return pageSize
	}
	return limit
}
