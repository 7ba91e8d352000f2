package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"dbvault/internal/archive"
	"dbvault/internal/database"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopSchema = `
CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE, avatar BLOB);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(id),
	total NUMERIC,
	note TEXT,
	placed_on DATE,
	shipped_at TIMESTAMP
);
INSERT INTO users (id, email, avatar) VALUES
	(1, 'ada@example.com', x'89504E47'),
	(2, 'bob@example.com', NULL),
	(3, 'cyd@example.com', x'00FF');
INSERT INTO orders (id, user_id, total, note, placed_on, shipped_at) VALUES
	(10, 1, 12.5, 'first', '2024-01-31', '2024-02-01 09:30:00'),
	(11, 1, 3, NULL, '2024-02-29', NULL),
	(12, 2, 99.99, 'gift "wrapped"', 1706659200, '2024-03-01T08:00:00Z'),
	(13, 3, 0, '', NULL, NULL),
	(14, 3, 7.25, 'ünïcödé', '2024-12-24', '2024-12-24 18:45:10.5');
`

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "app.db")+"?_foreign_keys=1&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func execSQL(t *testing.T, db *sql.DB, stmts string) {
	t.Helper()
	_, err := db.Exec(stmts)
	require.NoError(t, err)
}

func newTestEngine(t *testing.T, db *sql.DB, cfg *Config, opts ...Option) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(t.TempDir(), "archives")
	}
	opts = append([]Option{WithGuard(NewGuard())}, opts...)
	engine, err := NewEngine(db, database.SQLiteDialect{}, cfg, opts...)
	require.NoError(t, err)
	return engine
}

// dump returns every row of table ordered by its first column
func dump(t *testing.T, db *sql.DB, table string) [][]any {
	t.Helper()
	rows, err := db.Query(`SELECT * FROM "` + table + `" ORDER BY 1`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		require.NoError(t, rows.Scan(dest...))
		out = append(out, values)
	}
	require.NoError(t, rows.Err())
	return out
}

func dumpAll(t *testing.T, db *sql.DB, tables ...string) map[string][][]any {
	t.Helper()
	out := make(map[string][][]any, len(tables))
	for _, table := range tables {
		out[table] = dump(t, db, table)
	}
	return out
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestEngine_BackupAndRestoreRoundTrip(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, &Config{PageSize: 2})

	before := dumpAll(t, db, "users", "orders")

	created, err := engine.CreateBackup(context.Background(), CreateOptions{Label: "nightly", Creator: "ops"})
	require.NoError(t, err)
	assert.FileExists(t, created.Path)
	assert.Regexp(t, `^backup-\d{8}-\d{6}-[0-9a-f]{8}\.tar\.gz$`, created.Filename)

	execSQL(t, db, `
		DELETE FROM orders WHERE id > 11;
		UPDATE users SET email = 'changed@example.com' WHERE id = 2;
		INSERT INTO users (id, email) VALUES (4, 'new@example.com');
		INSERT INTO orders (id, user_id, total) VALUES (20, 4, 1);
	`)

	restored, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{Creator: "ops"})
	require.NoError(t, err)

	assert.Equal(t, before, dumpAll(t, db, "users", "orders"))
	assert.Equal(t, 2, restored.TablesRestored)
	assert.Equal(t, int64(8), restored.RowsRestored)
	assert.Equal(t, []string{"users", "orders"}, restored.Order)
	assert.Empty(t, restored.CyclicTables)
	assert.NoError(t, restored.FilesError)

	var fkViolations int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_foreign_key_check`).Scan(&fkViolations))
	assert.Zero(t, fkViolations)

	assert.Equal(t, [][]string{
		{"2024-01-31", "text", "2024-02-01 09:30:00", "text"},
		{"2024-02-29", "text", "", "null"},
		{"1706659200", "integer", "2024-03-01T08:00:00Z", "text"},
		{"", "null", "", "null"},
		{"2024-12-24", "text", "2024-12-24 18:45:10.5", "text"},
	}, storedDates(t, db))
}

// storedDates returns the raw stored text and storage class of the order date columns
func storedDates(t *testing.T, db *sql.DB) [][]string {
	t.Helper()
	rows, err := db.Query(`SELECT COALESCE(CAST(placed_on AS TEXT), ''), typeof(placed_on),
		COALESCE(CAST(shipped_at AS TEXT), ''), typeof(shipped_at) FROM orders ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var placed, placedType, shipped, shippedType string
		require.NoError(t, rows.Scan(&placed, &placedType, &shipped, &shippedType))
		out = append(out, []string{placed, placedType, shipped, shippedType})
	}
	require.NoError(t, rows.Err())
	return out
}

func TestEngine_GeneratedColumnsRoundTrip(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE lines (
			id INTEGER PRIMARY KEY,
			qty INTEGER NOT NULL,
			doubled INTEGER GENERATED ALWAYS AS (qty * 2) STORED,
			label TEXT AS ('line-' || id) VIRTUAL
		);
		INSERT INTO lines (id, qty) VALUES (1, 3), (2, 5);
	`)
	engine := newTestEngine(t, db, nil)
	before := dump(t, db, "lines")

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.Manifest.TableCounts["lines"])

	snapshot, err := engine.Store().Schema(created.Filename)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"doubled": true, "label": true}, snapshot.Tables["lines"].GeneratedColumns())

	f, err := os.Open(created.Path)
	require.NoError(t, err)
	defer f.Close()
	contents, err := archive.Open(f, t.TempDir())
	require.NoError(t, err)
	defer contents.Cleanup()
	segment, err := contents.OpenSegment("lines")
	require.NoError(t, err)
	rows, err := segment.Next(10)
	segment.Close()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "qty"}, rows[0].Columns)

	execSQL(t, db, `UPDATE lines SET qty = 100; INSERT INTO lines (id, qty) VALUES (3, 1);`)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, dump(t, db, "lines"))
}

func TestEngine_RestoreIntoNewlyGeneratedColumn(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE lines (id INTEGER PRIMARY KEY, qty INTEGER NOT NULL, doubled INTEGER);
		INSERT INTO lines (id, qty, doubled) VALUES (1, 3, 999);
	`)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `
		DROP TABLE lines;
		CREATE TABLE lines (id INTEGER PRIMARY KEY, qty INTEGER NOT NULL, doubled INTEGER GENERATED ALWAYS AS (qty * 2) STORED);
	`)

	restored, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(restored.Warnings, "\n"), "lines.doubled is now generated")

	var doubled int
	require.NoError(t, db.QueryRow(`SELECT doubled FROM lines WHERE id = 1`).Scan(&doubled))
	assert.Equal(t, 6, doubled)
}

func TestEngine_ManifestMatchesData(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, &Config{Compression: "zstd"}, WithToolVersion("1.2.3"))

	created, err := engine.CreateBackup(context.Background(), CreateOptions{Label: "weekly", Creator: "ci"})
	require.NoError(t, err)

	m := created.Manifest
	assert.Equal(t, map[string]int64{"users": 3, "orders": 5}, m.TableCounts)
	assert.Equal(t, int64(8), m.TotalRows)
	assert.Equal(t, 2, m.TableCount)
	assert.False(t, m.IncludesFiles)
	assert.Equal(t, "weekly", m.Label)
	assert.Equal(t, "ci", m.CreatedBy)
	assert.Equal(t, "1.2.3", m.ToolVersion)
	assert.Equal(t, "sqlite3", m.Dialect)
	assert.Equal(t, archive.CompressionZstd, m.Compression)
	assert.True(t, strings.HasSuffix(created.Filename, ".tar.zst"))

	info, err := engine.GetBackupInfo(created.Filename)
	require.NoError(t, err)
	assert.Equal(t, m.TableCounts, info.Manifest.TableCounts)
	assert.Equal(t, m.Segments, info.Manifest.Segments)
	assert.Equal(t, created.Size, info.Size)

	snapshot, err := engine.Store().Schema(created.Filename)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, snapshot.TableNames())
	assert.Equal(t, "users", snapshot.Tables["orders"].ForeignKeys[0].ReferencedTable)
}

func TestEngine_UsersOrdersScenario(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `DELETE FROM orders; DELETE FROM users WHERE id > 1;`)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, db, "users"))
	assert.Equal(t, 5, countRows(t, db, "orders"))

	var avatar []byte
	require.NoError(t, db.QueryRow(`SELECT avatar FROM users WHERE id = 1`).Scan(&avatar))
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, avatar)
}

func TestEngine_RestoreIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	first := dumpAll(t, db, "users", "orders")

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, dumpAll(t, db, "users", "orders"))
}

func TestEngine_RestoreIsAtomic(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE a (id INTEGER PRIMARY KEY, v TEXT);
		CREATE TABLE b (id INTEGER PRIMARY KEY, v TEXT);
		CREATE TABLE c (id INTEGER PRIMARY KEY, v TEXT);
		CREATE TABLE d (id INTEGER PRIMARY KEY, v TEXT);
		CREATE TABLE e (id INTEGER PRIMARY KEY, v TEXT);
		INSERT INTO a VALUES (1, 'a1'), (2, 'a2');
		INSERT INTO b VALUES (1, 'b1');
		INSERT INTO c VALUES (1, 'c1'), (2, NULL);
		INSERT INTO d VALUES (1, 'd1');
		INSERT INTO e VALUES (1, 'e1');
	`)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	// the third table in insert order now rejects an archived row
	execSQL(t, db, `
		DROP TABLE c;
		CREATE TABLE c (id INTEGER PRIMARY KEY, v TEXT NOT NULL);
		INSERT INTO c VALUES (7, 'live');
		DELETE FROM a WHERE id = 2;
		INSERT INTO b VALUES (9, 'live');
		UPDATE d SET v = 'live';
	`)
	tables := []string{"a", "b", "c", "d", "e"}
	before := dumpAll(t, db, tables...)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.Error(t, err)
	assert.Equal(t, KindRestoreWrite, KindOf(err))

	var restoreErr *Error
	require.ErrorAs(t, err, &restoreErr)
	assert.Equal(t, "c", restoreErr.Context["table"])
	assert.Equal(t, "constraint", restoreErr.Context["error_type"])

	assert.Equal(t, before, dumpAll(t, db, tables...))
	assert.False(t, engine.guard.Held())
}

func TestEngine_RestoresForeignKeyCycle(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE a (id INTEGER PRIMARY KEY, b_id INTEGER REFERENCES b(id));
		CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER NOT NULL REFERENCES a(id));
		INSERT INTO a VALUES (1, NULL);
		INSERT INTO b VALUES (1, 1);
		UPDATE a SET b_id = 1 WHERE id = 1;
		INSERT INTO a VALUES (2, 1);
	`)
	engine := newTestEngine(t, db, nil)
	before := dumpAll(t, db, "a", "b")

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `UPDATE a SET b_id = NULL; DELETE FROM b; DELETE FROM a;`)

	restored, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, restored.CyclicTables)
	assert.Equal(t, before, dumpAll(t, db, "a", "b"))
}

func TestEngine_DryRunLeavesDataUntouched(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `DELETE FROM orders WHERE id > 10`)
	before := dumpAll(t, db, "users", "orders")

	result, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, int64(8), result.RowsRestored)
	assert.Equal(t, before, dumpAll(t, db, "users", "orders"))
}

func TestEngine_ProgressEvents(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)

	var events []ProgressEvent
	engine := newTestEngine(t, db, nil, WithProgress(ProgressFunc(func(ev ProgressEvent) {
		events = append(events, ev)
	})))

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)
	assertStages(t, events, StageSchema, "exporting:users", "exporting:orders", StagePackaging, StageComplete)

	events = nil
	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assertStages(t, events, StageTruncating, "inserting:users", "inserting:orders", StageComplete)
}

// assertStages checks stages appear in order and percentages never go down
func assertStages(t *testing.T, events []ProgressEvent, want ...string) {
	t.Helper()
	require.NotEmpty(t, events)

	next := 0
	last := 0
	for _, ev := range events {
		if next < len(want) && ev.Stage == want[next] {
			next++
		}
		if ev.Progress != NoProgress {
			assert.GreaterOrEqual(t, ev.Progress, last, "progress went backwards at %s", ev.Stage)
			last = ev.Progress
		}
	}
	assert.Equal(t, len(want), next, "missing stage %v", want[min(next, len(want)-1)])
	assert.Equal(t, 100, events[len(events)-1].Progress)
}

func TestEngine_SecondOperationFailsFast(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)

	var engine *Engine
	var nestedErr error
	engine = newTestEngine(t, db, nil, WithProgress(ProgressFunc(func(ev ProgressEvent) {
		if ev.Stage == StagePackaging {
			_, nestedErr = engine.CreateBackup(context.Background(), CreateOptions{})
		}
	})))

	_, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)
	require.Error(t, nestedErr)
	assert.True(t, IsConflict(nestedErr))
	assert.True(t, IsRetryable(nestedErr))

	archives, err := engine.ListBackups()
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestEngine_GuardBlocksBothOperations(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	guard := NewGuard()
	engine := newTestEngine(t, db, nil, WithGuard(guard))

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	assert.False(t, guard.Held())

	require.True(t, guard.TryAcquire())
	_, err = engine.CreateBackup(context.Background(), CreateOptions{})
	assert.True(t, IsConflict(err))
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "backup", engineErr.Context["operation"])

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	assert.True(t, IsConflict(err))
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "restore", engineErr.Context["operation"])
	guard.Release()

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	assert.NoError(t, err)
	assert.False(t, guard.Held())

	_, err = engine.RestoreFromBackup(context.Background(), "backup-20240115-103000-00000000.tar.gz", RestoreOptions{})
	assert.True(t, IsNotFound(err))
	assert.False(t, guard.Held(), "a failed restore releases the guard")
}

func TestEngine_RejectsUnsafeFilenames(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	outside := filepath.Join(filepath.Dir(engine.Store().Dir()), "secret.tar.gz")
	require.NoError(t, os.WriteFile(outside, []byte("keep me"), 0o644))

	for _, name := range []string{"../secret.tar.gz", "..", ".", "a/b.tar.gz", `a\b.tar.gz`, "", "name with space.tar.gz", "/etc/passwd"} {
		_, err := engine.RestoreFromBackup(context.Background(), name, RestoreOptions{})
		assert.True(t, IsValidation(err), "restore %q: %v", name, err)

		_, err = engine.GetBackupInfo(name)
		assert.True(t, IsValidation(err), "info %q: %v", name, err)

		err = engine.DeleteBackup(context.Background(), name)
		assert.True(t, IsValidation(err), "delete %q: %v", name, err)
	}

	assert.FileExists(t, outside)
	assert.False(t, engine.guard.Held())
}

func TestEngine_CorruptArchiveLeavesDatabaseAlone(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)
	before := dumpAll(t, db, "users", "orders")

	require.NoError(t, os.MkdirAll(engine.Store().Dir(), 0o755))
	bad := "backup-20240101-000000-deadbeef.tar.gz"
	require.NoError(t, os.WriteFile(filepath.Join(engine.Store().Dir(), bad), []byte{0x1f, 0x8b, 0x08, 0x00, 0x01}, 0o644))

	_, err := engine.RestoreFromBackup(context.Background(), bad, RestoreOptions{})
	assert.True(t, IsCorrupt(err), "%v", err)
	assert.Equal(t, before, dumpAll(t, db, "users", "orders"))

	_, err = engine.GetBackupInfo(bad)
	assert.True(t, IsCorrupt(err), "%v", err)

	// the guard was released on the failure path
	_, err = engine.CreateBackup(context.Background(), CreateOptions{})
	assert.NoError(t, err)
}

func TestEngine_RestoreMissingArchive(t *testing.T) {
	db := openSQLite(t)
	engine := newTestEngine(t, db, nil)

	_, err := engine.RestoreFromBackup(context.Background(), "backup-nope.tar.gz", RestoreOptions{})
	assert.True(t, IsNotFound(err), "%v", err)
}

func TestEngine_RestoreRejectsOtherDialect(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)
	require.NoError(t, os.MkdirAll(engine.Store().Dir(), 0o755))

	name := "backup-pg.tar"
	f, err := os.Create(filepath.Join(engine.Store().Dir(), name))
	require.NoError(t, err)
	w, err := archive.NewWriter(f, archive.CompressionNone, 0)
	require.NoError(t, err)
	m := archive.NewManifest("postgres", "shop", archive.CompressionNone)
	require.NoError(t, w.WriteManifest(m))
	snap, err := engine.introspector.Introspect(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, w.WriteSchema(snap))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	_, err = engine.RestoreFromBackup(context.Background(), name, RestoreOptions{})
	assert.True(t, IsValidation(err), "%v", err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestEngine_RestoreRequiresArchivedTables(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)
	execSQL(t, db, `DROP TABLE orders`)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	assert.True(t, IsValidation(err), "%v", err)
	assert.Contains(t, err.Error(), "orders")
	assert.Equal(t, 3, countRows(t, db, "users"))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	files, err := archive.ListFiles(root)
	require.NoError(t, err)
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		out[rel] = string(data)
	}
	return out
}

func TestEngine_FileTreeRoundTrip(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	filesDir := filepath.Join(t.TempDir(), "uploads")
	original := map[string]string{"avatars/1.png": "png", "docs/readme.txt": "hello"}
	writeTree(t, filesDir, original)

	engine := newTestEngine(t, db, &Config{FilesDir: filesDir})
	created, err := engine.CreateBackup(context.Background(), CreateOptions{IncludeFiles: true})
	require.NoError(t, err)
	assert.True(t, created.Manifest.IncludesFiles)
	assert.Equal(t, 2, created.Manifest.FileCount)

	require.NoError(t, os.Remove(filepath.Join(filesDir, "docs", "readme.txt")))
	writeTree(t, filesDir, map[string]string{"avatars/1.png": "changed", "new.bin": "x"})

	restored, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.NoError(t, restored.FilesError)
	assert.Equal(t, 2, restored.FilesRestored)
	assert.Equal(t, original, readTree(t, filesDir))

	siblings, err := os.ReadDir(filepath.Dir(filesDir))
	require.NoError(t, err)
	assert.Len(t, siblings, 1, "the previous tree must not be left behind")
}

func TestEngine_IncludeFilesRequiresDirectory(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)

	_, err := engine.CreateBackup(context.Background(), CreateOptions{IncludeFiles: true})
	assert.True(t, IsValidation(err))
}

func TestEngine_EmptyDatabase(t *testing.T) {
	db := openSQLite(t)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)
	assert.Zero(t, created.Manifest.TableCount)

	restored, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	assert.Zero(t, restored.TablesRestored)
}

func TestEngine_FailedBackupLeavesNoArchive(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, shopSchema)
	engine := newTestEngine(t, db, nil)
	require.NoError(t, db.Close())

	_, err := engine.CreateBackup(context.Background(), CreateOptions{})
	assert.Equal(t, KindIntrospection, KindOf(err))

	entries, err := os.ReadDir(engine.Store().Dir())
	if err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		assert.Empty(t, names)
	}
	assert.False(t, engine.guard.Held())
}

func TestNewEngine_Validation(t *testing.T) {
	db := openSQLite(t)

	_, err := NewEngine(nil, database.SQLiteDialect{}, nil)
	assert.Error(t, err)

	_, err = NewEngine(db, nil, nil)
	assert.Error(t, err)

	_, err = NewEngine(db, database.SQLiteDialect{}, &Config{Compression: "rar"})
	assert.Equal(t, KindConfiguration, KindOf(err))

	engine, err := NewEngine(db, database.SQLiteDialect{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, engine.Config().PageSize)
	assert.Same(t, ProcessGuard(), engine.guard)
}

func TestEngine_RestoreReportsSchemaDrift(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);
		INSERT INTO notes VALUES (1, 'one'), (2, 'two');
	`)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `ALTER TABLE notes ADD COLUMN pinned INTEGER`)

	result, err := engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "notes.pinned")
	assert.Equal(t, 2, countRows(t, db, "notes"))
}

func TestEngine_RestoreRejectsMissingColumn(t *testing.T) {
	db := openSQLite(t)
	execSQL(t, db, `
		CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT, tag TEXT);
		INSERT INTO notes VALUES (1, 'one', 'x');
	`)
	engine := newTestEngine(t, db, nil)

	created, err := engine.CreateBackup(context.Background(), CreateOptions{})
	require.NoError(t, err)

	execSQL(t, db, `
		DROP TABLE notes;
		CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);
		INSERT INTO notes VALUES (5, 'live');
	`)

	_, err = engine.RestoreFromBackup(context.Background(), created.Filename, RestoreOptions{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	var restoreErr *Error
	require.ErrorAs(t, err, &restoreErr)
	assert.Contains(t, restoreErr.Context["issues"], "column notes.tag is in the archive but not in the database")
	assert.Equal(t, [][]any{{int64(5), "live"}}, dump(t, db, "notes"))
}
