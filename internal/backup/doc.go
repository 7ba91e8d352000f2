// Package backup creates and restores full database archives.
//
// An Engine wraps one database handle and one archive directory:
//
//   - CreateBackup introspects the schema, pages every table into spooled
//     segments and writes a single archive, renamed into place on success.
//   - RestoreFromBackup verifies an archive, then clears and refills every
//     archived table inside one transaction on a dedicated connection, with
//     foreign key checks deferred. Any failure rolls the whole restore back.
//   - ListBackups, GetBackupInfo, DeleteBackup and CleanupOldBackups manage
//     the archive directory.
//
// Backups and restores share a process-wide Guard, so at most one of them runs
// at a time and a second caller fails fast with a CONFLICT error.
//
// Example usage:
//
//	engine, err := backup.NewEngine(db, dialect, &backup.Config{ArchiveDir: "/var/backups/shop"})
//	if err != nil {
//		return err
//	}
//
//	created, err := engine.CreateBackup(ctx, backup.CreateOptions{Label: "nightly"})
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//
//	if _, err := engine.RestoreFromBackup(ctx, created.Filename, backup.RestoreOptions{}); err != nil {
//		return fmt.Errorf("restore failed: %w", err)
//	}
package backup
