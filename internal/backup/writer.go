package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dbvault/internal/archive"
	"dbvault/internal/database"
	"dbvault/internal/schema"

	"github.com/google/uuid"
)

// CreateOptions controls a single backup
type CreateOptions struct {
	Label        string
	Creator      string
	IncludeFiles bool
}

// CreateResult describes a finished archive
type CreateResult struct {
	Filename string            `json:"filename" yaml:"filename"`
	Path     string            `json:"path" yaml:"path"`
	Size     int64             `json:"size" yaml:"size"`
	Manifest *archive.Manifest `json:"manifest" yaml:"manifest"`
	Duration time.Duration     `json:"duration" yaml:"duration"`
	Replicas *ReplicaResult    `json:"replicas,omitempty" yaml:"replicas,omitempty"`
}

// CreateBackup exports every table (and optionally the blob directory) into
// a new archive. The archive only appears under its final name once complete.
func (e *Engine) CreateBackup(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	var result *CreateResult
	err := e.guard.Run("backup", func() error {
		var err error
		result, err = e.runBackup(ctx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) runBackup(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	operationID := uuid.NewString()
	finish := e.logger.LogOperationStart("backup", map[string]interface{}{
		"operation_id":  operationID,
		"label":         opts.Label,
		"creator":       opts.Creator,
		"include_files": opts.IncludeFiles,
	})

	start := time.Now()
	result, err := e.createBackup(ctx, opts, newProgressTracker(e.progress))
	finish(err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	if len(e.replicas) > 0 {
		result.Replicas = uploadAll(ctx, e.replicas, result.Filename, result.Path, e.logger)
	}
	return result, nil
}

func (e *Engine) createBackup(ctx context.Context, opts CreateOptions, progress *progressTracker) (*CreateResult, error) {
	if opts.IncludeFiles && e.config.FilesDir == "" {
		return nil, NewValidationError("file tree backup requested but no files directory is configured", nil)
	}

	progress.report(StageSchema, "", "Reading database schema", 0)
	snapshot, err := e.introspector.Introspect(ctx, e.db)
	if err != nil {
		return nil, NewIntrospectionError("failed to read database schema", err)
	}
	order := schema.ResolveSnapshotOrder(snapshot)
	tables := order.Insert()
	progress.report(StageSchema, "", fmt.Sprintf("Found %d tables", len(tables)), 5)

	spool, err := e.makeSpool(".export-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(spool)

	compression := e.config.CompressionType()
	manifest := archive.NewManifest(e.dialect.Name(), snapshot.Database, compression)
	manifest.CreatedAt = e.now().UTC()
	manifest.Label = opts.Label
	manifest.CreatedBy = opts.Creator
	manifest.ToolVersion = e.toolVersion

	segments := make(map[string]string, len(tables))
	for i, name := range tables {
		progress.report(StageExporting, name, fmt.Sprintf("Exporting table %s", name), span(5, 80, i, len(tables)))

		spoolPath := filepath.Join(spool, fmt.Sprintf("%06d.json", i))
		info, err := e.exportTable(ctx, snapshot.Tables[name], spoolPath)
		if err != nil {
			return nil, err
		}
		manifest.AddSegment(name, info)
		segments[name] = spoolPath
	}

	var files []string
	if opts.IncludeFiles {
		files, err = archive.ListFiles(e.config.FilesDir)
		if err != nil {
			return nil, NewFileTreeError("failed to scan files directory", err).WithContext("dir", e.config.FilesDir)
		}
		manifest.IncludesFiles = true
		manifest.FileCount = len(files)
	}

	progress.report(StagePackaging, "", "Writing archive", 80)
	filename := GenerateArchiveName(manifest.CreatedAt, compression)
	path, size, err := e.writeArchive(filename, manifest, snapshot, tables, segments, files)
	if err != nil {
		return nil, err
	}

	progress.report(StageComplete, "", fmt.Sprintf("Backup %s complete: %d tables, %d rows", filename, manifest.TableCount, manifest.TotalRows), 100)
	e.logger.WithFields(map[string]interface{}{
		"filename":   filename,
		"tables":     manifest.TableCount,
		"total_rows": manifest.TotalRows,
		"files":      manifest.FileCount,
		"size":       size,
	}).Info("Backup archive written")

	return &CreateResult{Filename: filename, Path: path, Size: size, Manifest: manifest}, nil
}

// exportTable pages through a table and spools its rows as one segment
func (e *Engine) exportTable(ctx context.Context, table *schema.Table, spoolPath string) (archive.SegmentInfo, error) {
	start := time.Now()
	f, err := os.OpenFile(spoolPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return archive.SegmentInfo{}, NewStorageError("failed to create segment spool file", err)
	}
	defer f.Close()

	segment := archive.NewSegmentWriter(f)
	binary := table.BinaryColumns()
	orderBy := table.OrderColumns()
	query := database.SelectAllSQL(e.dialect, table.Name, table.ExportColumns())
	if len(orderBy) > 0 {
		query = database.SelectPageSQL(e.dialect, table.Name, table.ExportColumns(), orderBy)
	} else {
		e.logger.WithField("table", table.Name).Debug("Table has no orderable columns, exporting in one pass")
	}
	paged := len(orderBy) > 0
	pageSize := e.config.PageSize

	for offset := 0; ; offset += pageSize {
		var args []any
		if paged {
			args = []any{pageSize, offset}
		}
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return archive.SegmentInfo{}, NewIntrospectionError(fmt.Sprintf("failed to read rows of table %s", table.Name), err).
				WithContext("table", table.Name)
		}
		n, err := e.writePage(rows, segment, binary)
		if err != nil {
			return archive.SegmentInfo{}, NewIntrospectionError(fmt.Sprintf("failed to export table %s", table.Name), err).
				WithContext("table", table.Name)
		}
		if !paged || n < pageSize {
			break
		}
	}

	if err := segment.Close(); err != nil {
		return archive.SegmentInfo{}, NewStorageError("failed to finish segment", err)
	}
	if err := f.Close(); err != nil {
		return archive.SegmentInfo{}, NewStorageError("failed to close segment spool file", err)
	}

	info := segment.Info()
	e.logger.LogTableTransfer("export", table.Name, info.Rows, time.Since(start))
	return info, nil
}

func (e *Engine) writePage(rows *sql.Rows, segment *archive.SegmentWriter, binary map[string]bool) (int, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return n, err
		}
		for i, col := range columns {
			values[i] = e.exportValue(values[i], binary[col])
		}
		if err := segment.WriteRow(archive.NewRow(columns, values)); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

// exportValue turns a scanned value into something JSON can carry. Raw bytes
// stay bytes (base64 in JSON) only for binary columns.
func (e *Engine) exportValue(v any, binary bool) any {
	if b, ok := v.([]byte); ok && !binary {
		return string(b)
	}
	return e.dialect.NormalizeValue(v)
}

// writeArchive streams every entry into a temporary file and renames it into place
func (e *Engine) writeArchive(filename string, manifest *archive.Manifest, snapshot *schema.Snapshot,
	tables []string, segments map[string]string, files []string) (path string, size int64, err error) {

	tmp, err := e.store.createTemp()
	if err != nil {
		return "", 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				e.logger.WithField("path", tmp.Name()).WithError(rmErr).Warn("Failed to remove partial archive")
			}
		}
	}()

	w, err := archive.NewWriter(tmp, manifest.Compression, e.config.CompressionLevel)
	if err != nil {
		return "", 0, NewStorageError("failed to start archive", err)
	}
	if err := w.WriteManifest(manifest); err != nil {
		return "", 0, NewStorageError("failed to write manifest", err)
	}
	if err := w.WriteSchema(snapshot); err != nil {
		return "", 0, NewStorageError("failed to write schema snapshot", err)
	}
	for _, table := range tables {
		if err := copySegment(w, table, segments[table], manifest.Segments[table].Bytes); err != nil {
			return "", 0, NewStorageError(fmt.Sprintf("failed to write segment for table %s", table), err)
		}
	}
	for _, rel := range files {
		if _, err := w.WriteFile(rel, filepath.Join(e.config.FilesDir, filepath.FromSlash(rel))); err != nil {
			return "", 0, NewFileTreeError(fmt.Sprintf("failed to archive file %s", rel), err)
		}
	}
	if err := w.Close(); err != nil {
		return "", 0, NewStorageError("failed to finish archive", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return "", 0, NewStorageError("failed to stat archive", err)
	}
	path, err = e.store.commit(tmp, filename)
	if err != nil {
		return "", 0, err
	}
	committed = true
	return path, info.Size(), nil
}

func copySegment(w *archive.Writer, table, spoolPath string, size int64) error {
	f, err := os.Open(spoolPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return w.WriteSegment(table, f, size)
}
