package backup

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"dbvault/internal/archive"
	"dbvault/internal/database"
	apperrors "dbvault/internal/errors"
	"dbvault/internal/schema"

	"github.com/google/uuid"
)

// RestoreOptions controls a single restore
type RestoreOptions struct {
	Creator string
	// DryRun replays the archive inside the transaction and rolls back
	DryRun bool
}

// RestoreResult describes a finished restore
type RestoreResult struct {
	Filename       string            `json:"filename" yaml:"filename"`
	TablesRestored int               `json:"tablesRestored" yaml:"tables_restored"`
	RowsRestored   int64             `json:"rowsRestored" yaml:"rows_restored"`
	Manifest       *archive.Manifest `json:"manifest" yaml:"manifest"`
	Order          []string          `json:"order" yaml:"order"`
	CyclicTables   []string          `json:"cyclicTables,omitempty" yaml:"cyclic_tables,omitempty"`
	FilesRestored  int               `json:"filesRestored" yaml:"files_restored"`
	// Warnings lists schema differences between the archive and the database
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	// FilesError is set when the database was restored but the blob
	// directory could not be replaced.
	FilesError error         `json:"-" yaml:"-"`
	DryRun     bool          `json:"dryRun" yaml:"dry_run"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// restorePlan is everything decided before the transaction starts
type restorePlan struct {
	order schema.Order
	// tables holds the archived definitions, live the target's current ones.
	// live is nil when the catalog could not be read.
	tables   map[string]*schema.Table
	live     map[string]*schema.Table
	warnings []string
}

// RestoreFromBackup replaces the contents of every archived table with the
// archived rows inside one transaction. On any database error nothing is
// changed.
func (e *Engine) RestoreFromBackup(ctx context.Context, filename string, opts RestoreOptions) (*RestoreResult, error) {
	archivePath, err := e.store.Path(filename)
	if err != nil {
		return nil, err
	}

	var result *RestoreResult
	err = e.guard.Run("restore", func() error {
		var err error
		result, err = e.runRestore(ctx, filename, archivePath, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) runRestore(ctx context.Context, filename, archivePath string, opts RestoreOptions) (*RestoreResult, error) {
	finish := e.logger.LogOperationStart("restore", map[string]interface{}{
		"operation_id": uuid.NewString(),
		"filename":     filename,
		"creator":      opts.Creator,
		"dry_run":      opts.DryRun,
	})

	start := time.Now()
	result, err := e.restore(ctx, filename, archivePath, opts, newProgressTracker(e.progress))
	finish(err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) restore(ctx context.Context, filename, archivePath string, opts RestoreOptions, progress *progressTracker) (*RestoreResult, error) {
	f, err := os.Open(archivePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NewNotFoundError(fmt.Sprintf("archive %s not found", filename), err).WithContext("filename", filename)
	}
	if err != nil {
		return nil, NewStorageError("failed to open archive", err).WithContext("filename", filename)
	}
	defer f.Close()

	spool, err := e.makeSpool(".restore-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(spool)

	contents, err := archive.Open(f, spool)
	if err != nil {
		if errors.Is(err, archive.ErrCorruptArchive) {
			return nil, NewCorruptArchiveError("archive failed verification", err).WithContext("filename", filename)
		}
		return nil, NewStorageError("failed to read archive", err).WithContext("filename", filename)
	}
	defer contents.Cleanup()

	manifest := contents.Manifest
	if manifest.Dialect != e.dialect.Name() {
		return nil, NewValidationError(fmt.Sprintf("archive was taken from a %s database and cannot be restored into %s",
			manifest.Dialect, e.dialect.Name()), nil).WithContext("filename", filename)
	}

	plan, err := e.planRestore(ctx, contents)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		Filename:     filename,
		Manifest:     manifest,
		Order:        plan.order.Insert(),
		CyclicTables: plan.order.Cyclic,
		Warnings:     plan.warnings,
		DryRun:       opts.DryRun,
	}
	if plan.order.HasCycles() {
		e.logger.WithField("tables", strings.Join(plan.order.Cyclic, ",")).
			Warn("Foreign key cycle detected; relying on deferred constraint checks")
	}

	if err := e.replayTables(ctx, contents, plan, opts.DryRun, result, progress); err != nil {
		return nil, err
	}

	if opts.DryRun {
		progress.report(StageComplete, "", fmt.Sprintf("Dry run of %s complete: %d rows verified", filename, result.RowsRestored), 100)
		return result, nil
	}

	if manifest.IncludesFiles {
		progress.report(StageFiles, "", "Restoring files", 90)
		if e.config.FilesDir == "" {
			e.logger.WithField("filename", filename).Warn("Archive contains files but no files directory is configured; skipping")
		} else if err := swapFileTree(contents.FilesDir, e.config.FilesDir); err != nil {
			result.FilesError = NewFileTreeError("database restored but the files directory could not be replaced", err).
				WithContext("dir", e.config.FilesDir)
			e.logger.WithField("dir", e.config.FilesDir).WithError(err).Error("File tree restore failed after database commit")
		} else {
			result.FilesRestored = contents.FileCount
		}
	}

	progress.report(StageComplete, "", fmt.Sprintf("Restore of %s complete: %d tables, %d rows", filename, result.TablesRestored, result.RowsRestored), 100)
	return result, nil
}

// planRestore resolves the table order from the live catalog, falling back to
// the archived snapshot when the catalog cannot be read.
func (e *Engine) planRestore(ctx context.Context, contents *archive.Contents) (*restorePlan, error) {
	archived := contents.Manifest.Tables()
	inArchive := make(map[string]bool, len(archived))
	for _, t := range archived {
		inArchive[t] = true
	}

	var warnings []string
	var liveTables map[string]*schema.Table
	source := contents.Schema
	live, err := e.introspector.Introspect(ctx, e.db)
	if err != nil {
		e.logger.WithError(err).Warn("Live catalog unavailable; ordering tables from the archived schema")
	} else {
		var missing []string
		for _, t := range archived {
			if _, ok := live.Tables[t]; !ok {
				missing = append(missing, t)
			}
		}
		if len(missing) > 0 {
			return nil, NewValidationError("target database is missing archived tables: "+strings.Join(missing, ", "), nil).
				WithContext("tables", missing)
		}

		report := schema.NewSchemaValidator(e.config.StrictSchema).CheckRestore(contents.Schema, live, archived)
		if !report.IsCompatible() {
			return nil, NewValidationError("archived tables do not match the database: "+report.Summary(), nil).
				WithContext("issues", report.Messages())
		}
		for _, w := range report.Warnings {
			e.logger.WithFields(map[string]interface{}{
				"table":    w.TableName,
				"column":   w.ColumnName,
				"severity": w.Severity,
			}).Warn(w.Message)
		}
		warnings = report.Messages()
		source = live
		liveTables = live.Tables
	}

	var edges []schema.ForeignKey
	for _, fk := range source.ForeignKeys() {
		if inArchive[fk.Table] && inArchive[fk.ReferencedTable] {
			edges = append(edges, fk)
		}
	}

	// column types for decoding come from the archive, which matches the data
	tables := make(map[string]*schema.Table, len(archived))
	for _, t := range archived {
		if tbl, ok := contents.Schema.Tables[t]; ok {
			tables[t] = tbl
		} else if source != nil {
			tables[t] = source.Tables[t]
		}
	}

	return &restorePlan{
		order:    schema.ResolveOrder(archived, edges),
		tables:   tables,
		live:     liveTables,
		warnings: warnings,
	}, nil
}

// replayTables clears and refills every archived table in one transaction on
// a dedicated connection.
func (e *Engine) replayTables(ctx context.Context, contents *archive.Contents, plan *restorePlan, dryRun bool,
	result *RestoreResult, progress *progressTracker) error {

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return NewRestoreWriteError("failed to acquire a database connection", err)
	}
	defer conn.Close()
	defer e.resetSession(ctx, conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return NewRestoreWriteError("failed to begin restore transaction", err)
	}
	done := false
	defer func() {
		if !done {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.logger.WithError(rbErr).Error("Restore rollback failed")
			}
		}
	}()

	for _, stmt := range e.dialect.DeferConstraintsSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return writeError("failed to defer constraint checks", "", err)
		}
	}

	progress.report(StageTruncating, "", "Clearing tables", 10)
	for _, table := range plan.order.Truncate() {
		stmt := e.dialect.ClearTableSQL(table)
		start := time.Now()
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			e.logger.LogSQLExecution(stmt, time.Since(start), 0, err)
			return writeError(fmt.Sprintf("failed to clear table %s", table), table, err)
		}
		affected, _ := res.RowsAffected()
		e.logger.LogSQLExecution(stmt, time.Since(start), affected, nil)
	}

	insert := plan.order.Insert()
	for i, table := range insert {
		progress.report(StageInserting, table, fmt.Sprintf("Restoring table %s", table), span(15, 90, i, len(insert)))
		start := time.Now()
		n, err := e.insertTable(ctx, tx, contents, table, newInsertTarget(plan.tables[table], plan.live[table]))
		if err != nil {
			return err
		}
		e.logger.LogTableTransfer("restore", table, n, time.Since(start))
		result.RowsRestored += n
		result.TablesRestored++
	}

	done = true
	if dryRun {
		if err := tx.Rollback(); err != nil {
			return NewRestoreWriteError("failed to roll back dry run", err)
		}
		return nil
	}
	if err := tx.Commit(); err != nil {
		return writeError("failed to commit restore", "", err)
	}

	result.Warnings = append(result.Warnings, e.resetSequences(ctx, conn, plan)...)
	return nil
}

// resetSequences moves serial and identity sequences past the restored keys.
// It runs after the commit and reports failures as warnings.
func (e *Engine) resetSequences(ctx context.Context, conn *sql.Conn, plan *restorePlan) []string {
	var warnings []string
	for _, table := range plan.order.Insert() {
		meta := plan.live[table]
		if meta == nil {
			meta = plan.tables[table]
		}
		if meta == nil {
			continue
		}
		for _, col := range meta.Columns {
			if !col.HasSequence() {
				continue
			}
			stmt, args := e.dialect.ResetSequenceSQL(table, col.Name)
			if stmt == "" {
				continue
			}
			start := time.Now()
			_, err := conn.ExecContext(ctx, stmt, args...)
			e.logger.LogSQLExecution(stmt, time.Since(start), 0, err)
			if err != nil {
				msg := fmt.Sprintf("sequence for %s.%s was not reset: %v", table, col.Name, err)
				e.logger.WithFields(map[string]interface{}{"table": table, "column": col.Name}).WithError(err).
					Warn("Failed to reset sequence after restore")
				warnings = append(warnings, msg)
			}
		}
	}
	return warnings
}

// insertTarget describes how archived rows are written into one table.
// Generated columns are recomputed by the server and dropped from inserts.
type insertTarget struct {
	binary     map[string]bool
	generated  map[string]bool
	overriding bool
	columns    int
}

func newInsertTarget(archived, live *schema.Table) insertTarget {
	t := insertTarget{binary: map[string]bool{}, generated: map[string]bool{}}
	if archived != nil {
		t.binary = archived.BinaryColumns()
		t.columns = len(archived.Columns)
	}
	for _, meta := range []*schema.Table{archived, live} {
		if meta == nil {
			continue
		}
		for _, col := range meta.Columns {
			if col.Generated {
				t.generated[col.Name] = true
			}
			if col.AlwaysIdentity() {
				t.overriding = true
			}
		}
	}
	return t
}

func (e *Engine) insertTable(ctx context.Context, tx *sql.Tx, contents *archive.Contents, table string, target insertTarget) (int64, error) {
	segment, err := contents.OpenSegment(table)
	if err != nil {
		return 0, NewCorruptArchiveError(fmt.Sprintf("missing data for table %s", table), err)
	}
	defer segment.Close()

	readSize := e.config.PageSize
	if target.columns > 0 {
		readSize = database.BatchSize(e.dialect, target.columns, e.config.PageSize)
	}

	var total int64
	for {
		rows, err := segment.Next(readSize)
		if err != nil {
			return total, NewCorruptArchiveError(fmt.Sprintf("failed to read archived rows of table %s", table), err)
		}
		if len(rows) == 0 {
			return total, nil
		}
		for len(rows) > 0 {
			batch := leadingBatch(rows, database.BatchSize(e.dialect, rows[0].Len(), e.config.PageSize))
			if err := e.insertBatch(ctx, tx, table, batch, target); err != nil {
				return total, err
			}
			total += int64(len(batch))
			rows = rows[len(batch):]
		}
	}
}

// leadingBatch returns the longest prefix of rows, at most limit long, whose
// rows share one column list.
func leadingBatch(rows []archive.Row, limit int) []archive.Row {
	n := 1
	for n < len(rows) && n < limit && sameColumns(rows[0].Columns, rows[n].Columns) {
		n++
	}
	return rows[:n]
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Engine) insertBatch(ctx context.Context, tx *sql.Tx, table string, batch []archive.Row, target insertTarget) error {
	var columns []string
	var keep []int
	for i, col := range batch[0].Columns {
		if !target.generated[col] {
			columns = append(columns, col)
			keep = append(keep, i)
		}
	}
	if len(columns) == 0 {
		return NewCorruptArchiveError(fmt.Sprintf("archived row of table %s has no writable columns", table), nil)
	}

	args := make([]any, 0, len(batch)*len(columns))
	for _, row := range batch {
		for j, i := range keep {
			v, err := importValue(row.Values[i], target.binary[columns[j]])
			if err != nil {
				return NewCorruptArchiveError(fmt.Sprintf("invalid value for %s.%s", table, columns[j]), err)
			}
			args = append(args, v)
		}
	}

	stmt := database.InsertSQL(e.dialect, table, columns, len(batch), target.overriding)
	start := time.Now()
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		e.logger.LogSQLExecution(stmt, time.Since(start), 0, err)
		return writeError(fmt.Sprintf("failed to insert into table %s", table), table, err)
	}
	affected, _ := res.RowsAffected()
	e.logger.LogSQLExecution(stmt, time.Since(start), affected, nil)
	return nil
}

// importValue converts a decoded JSON value into a bind argument
func importValue(v any, binary bool) (any, error) {
	switch val := v.(type) {
	case string:
		if binary {
			return base64.StdEncoding.DecodeString(val)
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		return v, nil
	}
}

func writeError(message, table string, err error) *Error {
	restoreErr := NewRestoreWriteError(message, err).
		WithContext("error_type", string(apperrors.Classify(err).Type))
	if table != "" {
		restoreErr.WithContext("table", table)
	}
	return restoreErr
}

func (e *Engine) resetSession(ctx context.Context, conn *sql.Conn) {
	for _, stmt := range e.dialect.ResetSessionSQL() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), stmt); err != nil {
			e.logger.WithError(err).Warn("Failed to reset session state after restore")
		}
	}
}
