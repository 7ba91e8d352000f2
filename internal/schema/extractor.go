package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dbvault/internal/database"
	"dbvault/internal/logging"
)

// Introspector reads tables, columns, primary keys and foreign keys from the live catalog
type Introspector struct {
	dialect      database.Dialect
	queryTimeout time.Duration
	logger       *logging.Logger
}

// NewIntrospector creates an introspector for the given dialect
func NewIntrospector(dialect database.Dialect, logger *logging.Logger) *Introspector {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Introspector{
		dialect:      dialect,
		queryTimeout: 30 * time.Second,
		logger:       logger,
	}
}

// WithTimeout sets the per-query timeout
func (i *Introspector) WithTimeout(timeout time.Duration) *Introspector {
	i.queryTimeout = timeout
	return i
}

// Introspect builds a snapshot of every base table in the working schema.
// Any catalog failure aborts the whole snapshot.
func (i *Introspector) Introspect(ctx context.Context, db database.DB) (*Snapshot, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	startTime := time.Now()

	schemaName, err := i.currentSchema(ctx, db)
	if err != nil {
		i.logger.LogSchemaIntrospection("", 0, time.Since(startTime), err)
		return nil, err
	}

	snapshot, err := i.introspectSchema(ctx, db, schemaName)
	tableCount := 0
	if snapshot != nil {
		tableCount = len(snapshot.Tables)
	}
	i.logger.LogSchemaIntrospection(schemaName, tableCount, time.Since(startTime), err)
	return snapshot, err
}

func (i *Introspector) introspectSchema(ctx context.Context, db database.DB, schemaName string) (*Snapshot, error) {
	snapshot := NewSnapshot(schemaName, i.dialect.Name())

	names, err := i.listTables(ctx, db, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, name := range names {
		table := NewTable(name)

		if table.Columns, err = i.listColumns(ctx, db, schemaName, name); err != nil {
			return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
		}
		if table.PrimaryKey, err = i.listPrimaryKey(ctx, db, schemaName, name); err != nil {
			return nil, fmt.Errorf("failed to read primary key for table %s: %w", name, err)
		}
		if table.ForeignKeys, err = i.listForeignKeys(ctx, db, schemaName, name); err != nil {
			return nil, fmt.Errorf("failed to read foreign keys for table %s: %w", name, err)
		}

		snapshot.Tables[name] = table
	}

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("introspected schema is invalid: %w", err)
	}
	return snapshot, nil
}

func (i *Introspector) query(ctx context.Context, db database.DB, query string, args []any, scan func(*sql.Rows) error) error {
	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	startTime := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		i.logger.LogSQLExecution(query, time.Since(startTime), 0, err)
		return err
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan catalog row: %w", err)
		}
		count++
	}
	err = rows.Err()
	i.logger.LogSQLExecution(query, time.Since(startTime), count, err)
	return err
}

func (i *Introspector) currentSchema(ctx context.Context, db database.DB) (string, error) {
	var name sql.NullString
	err := i.query(ctx, db, i.dialect.CurrentSchemaQuery(), nil, func(rows *sql.Rows) error {
		return rows.Scan(&name)
	})
	if err != nil {
		return "", fmt.Errorf("failed to determine current schema: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("no database selected")
	}
	return name.String, nil
}

func (i *Introspector) listTables(ctx context.Context, db database.DB, schemaName string) ([]string, error) {
	query, args := i.dialect.TablesQuery(schemaName)

	var names []string
	err := i.query(ctx, db, query, args, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	})
	return names, err
}

func (i *Introspector) listColumns(ctx context.Context, db database.DB, schemaName, table string) ([]*Column, error) {
	query, args := i.dialect.ColumnsQuery(schemaName, table)

	var columns []*Column
	err := i.query(ctx, db, query, args, func(rows *sql.Rows) error {
		var (
			name, dataType, nullable string
			generated                string
			defaultValue, identity   sql.NullString
			charLength               sql.NullInt64
			precision, scale         sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &nullable, &defaultValue, &charLength, &precision, &scale,
			&generated, &identity); err != nil {
			return err
		}

		col := &Column{
			Name:       name,
			DataType:   dataType,
			IsNullable: nullable == "YES",
			Generated:  generated == "YES",
			Identity:   identity.String,
			Position:   len(columns) + 1,
		}
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}
		if charLength.Valid {
			col.CharMaxLength = &charLength.Int64
		}
		if precision.Valid {
			col.NumericPrecision = &precision.Int64
		}
		if scale.Valid {
			col.NumericScale = &scale.Int64
		}
		columns = append(columns, col)
		return nil
	})
	return columns, err
}

func (i *Introspector) listPrimaryKey(ctx context.Context, db database.DB, schemaName, table string) ([]string, error) {
	query, args := i.dialect.PrimaryKeyQuery(schemaName, table)

	pk := make([]string, 0)
	err := i.query(ctx, db, query, args, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		pk = append(pk, name)
		return nil
	})
	return pk, err
}

func (i *Introspector) listForeignKeys(ctx context.Context, db database.DB, schemaName, table string) ([]*ForeignKey, error) {
	query, args := i.dialect.ForeignKeysQuery(schemaName, table)

	fks := make([]*ForeignKey, 0)
	err := i.query(ctx, db, query, args, func(rows *sql.Rows) error {
		fk := &ForeignKey{Table: table}
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return err
		}
		fks = append(fks, fk)
		return nil
	})
	return fks, err
}
