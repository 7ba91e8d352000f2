package cmd

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"strings"
	"time"

	"dbvault/internal/backup"
	"dbvault/internal/confirmation"
	"dbvault/internal/display"
	"dbvault/internal/schema"

	"github.com/spf13/cobra"
)

// newBackupCommand builds "dbvault backup" and its subcommands
func newBackupCommand(a *app) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and manage backup archives",
		Long: `Create, list, inspect and delete backup archives.

Archives live in backup.archive_dir and are named
backup-<UTC timestamp>-<8 hex>.tar.<codec>. When replicas are configured, new archives
are also copied to S3, Azure Blob Storage or Google Cloud Storage, and deletes
are propagated.

Examples:
  # Create an archive including the uploaded files directory
  dbvault backup create --label "pre-migration" --include-files

  # List archives
  dbvault backup list

  # Show the manifest of one archive
  dbvault backup info backup-20240115-103000-1a2b3c4d.tar.gz

  # Delete archives older than a week
  dbvault backup cleanup --retention-days 7`,
	}

	backupCmd.AddCommand(
		newBackupCreateCommand(a),
		newBackupListCommand(a),
		newBackupInfoCommand(a),
		newBackupDeleteCommand(a),
		newBackupCleanupCommand(a),
	)
	return backupCmd
}

func newBackupCreateCommand(a *app) *cobra.Command {
	var opts backup.CreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new backup archive",
		Long: `Export the schema and every row of the configured database into a new
archive. Tables are read page by page in primary key order and the archive only
appears under its final name once it is complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Creator == "" {
				opts.Creator = currentUser()
			}

			engine, release, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			result, err := engine.CreateBackup(cmd.Context(), opts)
			a.finishProgress()
			if err != nil {
				return err
			}

			return a.display.Output(result, func() {
				a.display.Success(fmt.Sprintf("Backup created: %s", result.Filename))
				m := result.Manifest
				pairs := [][2]string{
					{"Path", result.Path},
					{"Size", display.FormatBytes(result.Size)},
					{"Database", fmt.Sprintf("%s (%s)", m.Database, m.Dialect)},
					{"Tables", strconv.Itoa(m.TableCount)},
					{"Rows", strconv.FormatInt(m.TotalRows, 10)},
					{"Compression", string(m.Compression)},
					{"Duration", result.Duration.Round(time.Millisecond).String()},
				}
				if m.IncludesFiles {
					pairs = append(pairs, [2]string{"Files", strconv.Itoa(m.FileCount)})
				}
				a.display.KeyValues(pairs)
				if r := result.Replicas; r != nil {
					if len(r.Uploaded) > 0 {
						a.display.Info("Replicated to " + strings.Join(r.Uploaded, ", "))
					}
					for _, name := range display.SortedKeys(r.Failed) {
						a.display.Warning(fmt.Sprintf("Replica %s failed: %s", name, r.Failed[name]))
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "free-form label stored in the manifest")
	cmd.Flags().StringVar(&opts.Creator, "creator", "", "who created the archive (default: current user)")
	cmd.Flags().BoolVar(&opts.IncludeFiles, "include-files", false, "also archive backup.files_dir")
	return cmd
}

func newBackupListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List archives, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archives, err := a.store().List()
			if err != nil {
				return err
			}

			return a.display.Output(archives, func() {
				if len(archives) == 0 {
					a.display.Info("No backups found in " + a.config.Backup.ArchiveDir)
					return
				}
				rows := make([][]string, 0, len(archives))
				var total int64
				for _, ar := range archives {
					rows = append(rows, []string{
						ar.Filename,
						display.FormatBytes(ar.Size),
						ar.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					})
					total += ar.Size
				}
				a.display.Table([]string{"FILENAME", "SIZE", "CREATED"}, rows, 1)
				a.display.Info(fmt.Sprintf("%d archive(s), %s total", len(archives), display.FormatBytes(total)))
			})
		},
	}
}

func newBackupInfoCommand(a *app) *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "info <filename>",
		Short: "Show the manifest of an archive",
		Long: `Show the manifest of an archive: when and where it was taken, the codec
and the row count of every table. With --schema the archived table
definitions are printed instead; add --verbose for columns and foreign keys.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showSchema {
				return a.printArchiveSchema(args[0])
			}

			details, err := a.store().Info(args[0])
			if err != nil {
				return err
			}

			return a.display.Output(details, func() {
				m := details.Manifest
				a.display.Header(details.Filename)
				pairs := [][2]string{
					{"Size", display.FormatBytes(details.Size)},
					{"Created", m.CreatedAt.Format(time.RFC3339)},
					{"Database", fmt.Sprintf("%s (%s)", m.Database, m.Dialect)},
					{"Format version", strconv.Itoa(m.FormatVersion)},
					{"Compression", string(m.Compression)},
					{"Tables", strconv.Itoa(m.TableCount)},
					{"Rows", strconv.FormatInt(m.TotalRows, 10)},
				}
				if m.Label != "" {
					pairs = append(pairs, [2]string{"Label", m.Label})
				}
				if m.CreatedBy != "" {
					pairs = append(pairs, [2]string{"Created by", m.CreatedBy})
				}
				if m.ToolVersion != "" {
					pairs = append(pairs, [2]string{"Tool version", m.ToolVersion})
				}
				if m.IncludesFiles {
					pairs = append(pairs, [2]string{"Files", strconv.Itoa(m.FileCount)})
				}
				a.display.KeyValues(pairs)

				if len(m.TableCounts) == 0 {
					return
				}
				rows := make([][]string, 0, len(m.TableCounts))
				for _, name := range display.SortedKeys(m.TableCounts) {
					rows = append(rows, []string{name, strconv.FormatInt(m.TableCounts[name], 10)})
				}
				a.display.Table([]string{"TABLE", "ROWS"}, rows, 1)
			})
		},
	}

	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the archived table definitions")
	return cmd
}

func (a *app) printArchiveSchema(filename string) error {
	snapshot, err := a.store().Schema(filename)
	if err != nil {
		return err
	}
	return a.display.Output(snapshot, func() {
		df := schema.NewDisplayFormatter(a.config.Display.VerboseMode, a.display.ColorsEnabled())
		fmt.Fprint(a.display.Config().Writer, df.FormatSnapshot(snapshot))
	})
}

func newBackupDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete an archive and its replicas",
		Long: `Delete an archive from backup.archive_dir and from every configured replica.
Asks for confirmation unless --yes is given.`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.confirmDelete(cmd, args[0]); err != nil {
				if errors.Is(err, errCancelled) {
					a.display.Info("Delete cancelled")
					return nil
				}
				return err
			}

			engine, release, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := engine.DeleteBackup(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.display.Success("Deleted " + args[0])
			return nil
		},
	}
}

// confirmDelete asks before removing an archive. Archives whose manifest
// cannot be read can still be deleted.
func (a *app) confirmDelete(cmd *cobra.Command, filename string) error {
	summary := &confirmation.Summary{Action: "Delete", Target: filename}
	details, err := a.store().Info(filename)
	switch {
	case err == nil:
		m := details.Manifest
		summary.Details = [][2]string{
			{"Size", display.FormatBytes(details.Size)},
			{"Created", m.CreatedAt.Format(time.RFC3339)},
			{"Rows", strconv.FormatInt(m.TotalRows, 10)},
		}
		summary.Tables = m.TableCounts
	case backup.KindOf(err) == backup.KindCorruptArchive:
		summary.Warnings = append(summary.Warnings, "The archive is unreadable: "+err.Error())
	default:
		return err
	}
	if names := a.config.Backup.Replicas.Names(); len(names) > 0 {
		summary.Warnings = append(summary.Warnings, "Copies on "+strings.Join(names, ", ")+" will also be removed")
	}
	return a.confirm(cmd, summary)
}

func newBackupCleanupCommand(a *app) *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete archives older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("retention-days") && retentionDays < 1 {
				return backup.NewValidationError("retention days must be at least 1", nil).
					WithContext("retention_days", retentionDays)
			}

			engine, release, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			result, err := engine.CleanupOldBackups(cmd.Context(), retentionDays)
			if err != nil {
				return err
			}

			return a.display.Output(result, func() {
				for _, name := range result.Deleted {
					a.display.Info("Deleted " + name)
				}
				a.display.Success(fmt.Sprintf("Cleanup removed %d archive(s) created before %s, %d remaining",
					len(result.Deleted), result.Cutoff.Format(time.RFC3339), result.Remaining))
			})
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "age in days after which archives are deleted (default: backup.retention_days)")
	return cmd
}

// currentUser returns the login name used as the default archive creator
func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
