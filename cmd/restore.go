package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbvault/internal/backup"
	"dbvault/internal/confirmation"

	"github.com/spf13/cobra"
)

func newRestoreCommand(a *app) *cobra.Command {
	var opts backup.RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore <filename>",
		Short: "Restore the database from an archive",
		Long: `Replace the contents of every table with the rows stored in an archive.

The archive is verified before anything is written. All tables are then
truncated and reloaded inside a single transaction with constraint checks
deferred; any failure rolls the database back to its previous state. When the
archive carries a files directory it replaces backup.files_dir after the
transaction commits.

The live schema must already contain every archived table. Use --dry-run to
replay the archive and roll back instead of committing. A restore asks for
confirmation unless --yes is given; without a terminal --yes is required.

Examples:
  # Restore an archive
  dbvault restore backup-20240115-103000-1a2b3c4d.tar.gz

  # Restore from a script
  dbvault restore backup-20240115-103000-1a2b3c4d.tar.gz --yes

  # Check that an archive restores cleanly
  dbvault restore backup-20240115-103000-1a2b3c4d.tar.gz --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Creator == "" {
				opts.Creator = currentUser()
			}
			if !opts.DryRun {
				if err := a.confirmRestore(cmd, args[0]); err != nil {
					if errors.Is(err, errCancelled) {
						a.display.Info("Restore cancelled")
						return nil
					}
					return err
				}
			}

			engine, release, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			result, err := engine.RestoreFromBackup(cmd.Context(), args[0], opts)
			a.finishProgress()
			if err != nil {
				return err
			}

			if err := a.display.Output(result, func() { a.printRestore(result) }); err != nil {
				return err
			}
			return result.FilesError
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "replay the archive and roll back instead of committing")
	cmd.Flags().StringVar(&opts.Creator, "creator", "", "who requested the restore (default: current user)")
	return cmd
}

// confirmRestore shows what the archive will replace and asks for approval
func (a *app) confirmRestore(cmd *cobra.Command, filename string) error {
	details, err := a.store().Info(filename)
	if err != nil {
		return err
	}
	m := details.Manifest
	summary := &confirmation.Summary{
		Action: "Restore",
		Target: details.Filename,
		Details: [][2]string{
			{"Created", m.CreatedAt.Format(time.RFC3339)},
			{"Source", fmt.Sprintf("%s (%s)", m.Database, m.Dialect)},
			{"Target", fmt.Sprintf("%s (%s)", a.config.Database.Target(), a.config.Database.Driver)},
			{"Rows", strconv.FormatInt(m.TotalRows, 10)},
		},
		Tables: m.TableCounts,
		Warnings: []string{
			fmt.Sprintf("Every row in %d table(s) will be replaced", m.TableCount),
		},
	}
	if m.IncludesFiles && a.config.Backup.FilesDir != "" {
		summary.Warnings = append(summary.Warnings, "The files directory "+a.config.Backup.FilesDir+" will be replaced")
	}
	return a.confirm(cmd, summary)
}

func (a *app) printRestore(result *backup.RestoreResult) {
	if result.DryRun {
		a.display.Success(fmt.Sprintf("Dry run of %s succeeded, no changes were committed", result.Filename))
	} else {
		a.display.Success("Restored " + result.Filename)
	}

	pairs := [][2]string{
		{"Tables", strconv.Itoa(result.TablesRestored)},
		{"Rows", strconv.FormatInt(result.RowsRestored, 10)},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
	}
	if m := result.Manifest; m != nil {
		pairs = append([][2]string{{"Archive created", m.CreatedAt.Format(time.RFC3339)}}, pairs...)
	}
	if result.FilesRestored > 0 {
		pairs = append(pairs, [2]string{"Files", strconv.Itoa(result.FilesRestored)})
	}
	a.display.KeyValues(pairs)

	if a.config.Display.VerboseMode && len(result.Order) > 0 {
		a.display.Info("Insert order: " + strings.Join(result.Order, ", "))
	}
	for _, w := range result.Warnings {
		a.display.Warning("Schema drift: " + w)
	}
	if len(result.CyclicTables) > 0 {
		a.display.Warning("Foreign key cycle between " + strings.Join(result.CyclicTables, ", ") +
			"; these tables were loaded with constraint checks deferred")
	}
	if result.FilesError != nil {
		a.display.Warning("Database restored but the files directory was not replaced")
	}
}
