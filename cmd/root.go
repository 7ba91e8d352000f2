package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dbvault/internal/backup"
	"dbvault/internal/config"
	"dbvault/internal/confirmation"
	"dbvault/internal/database"
	apperrors "dbvault/internal/errors"
	"dbvault/internal/display"
	"dbvault/internal/logging"

	"github.com/spf13/cobra"
)

// Exit codes returned by Execute
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitConflict   = 3
)

// skipConfigAnnotation marks commands that run without loading configuration
const skipConfigAnnotation = "dbvault/skip-config"

// cliOptions holds the persistent flag values of one invocation
type cliOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	logFile    string
	format     string
	quiet      bool
	verbose    bool
	noColor    bool
	noProgress bool
	yes        bool
}

// app is the per-invocation state shared by every subcommand
type app struct {
	opts     cliOptions
	loader   *config.Loader
	config   *config.AppConfig
	logger   *logging.Logger
	display  *display.Service
	progress *display.ProgressPrinter
}

// NewRootCommand builds the dbvault command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "dbvault",
		Short: "Back up and restore relational databases as portable archives",
		Long: `dbvault exports every table of a MySQL, PostgreSQL or SQLite database, and
optionally a directory of uploaded files, into a single compressed archive.
Archives restore atomically: every table is truncated and reloaded inside one
transaction, and a failure leaves the database exactly as it was.

Only one backup or restore runs at a time.

Examples:
  # Create an archive using ./dbvault.yaml
  dbvault backup create --label nightly

  # List archives as JSON
  dbvault backup list --output json

  # Replay an archive without committing
  dbvault restore backup-20240115-103000-1a2b3c4d.tar.gz --dry-run

  # Write a starter configuration file
  dbvault config init`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "config file (default searches ./dbvault.yaml, $HOME/.config/dbvault and $HOME)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "log level (quiet, normal, verbose, debug)")
	flags.StringVar(&a.opts.logFormat, "log-format", "", "log format (text, json)")
	flags.StringVar(&a.opts.logFile, "log-file", "", "also write logs to this file")
	flags.StringVarP(&a.opts.format, "output", "o", "", "output format (table, json, yaml)")
	flags.BoolVarP(&a.opts.quiet, "quiet", "q", false, "suppress non-error output")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&a.opts.noColor, "no-color", false, "disable color output")
	flags.BoolVar(&a.opts.noProgress, "no-progress", false, "disable progress output")
	flags.BoolVarP(&a.opts.yes, "yes", "y", false, "approve restore and delete without prompting")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	rootCmd.AddCommand(
		newBackupCommand(a),
		newRestoreCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command tree and exits with a status derived from the
// error kind. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewRootCommand(), os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root with args and returns the process exit code
func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %s\n", errorMessage(err))
	return exitCode(err)
}

// errorMessage renders err for the terminal, including the context of
// engine errors
func errorMessage(err error) string {
	var engineErr *backup.Error
	if errors.As(err, &engineErr) {
		msg := err.Error()
		for _, key := range display.SortedKeys(engineErr.Context) {
			msg += fmt.Sprintf("\n  %s: %v", key, engineErr.Context[key])
		}
		if backup.IsRetryable(err) {
			msg += "\nRetry once the running backup or restore has finished"
		}
		return msg
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.FormatUserError(err)
	}
	return err.Error()
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case backup.IsRetryable(err):
		return exitConflict
	case backup.IsValidation(err), backup.KindOf(err) == backup.KindConfiguration,
		apperrors.GetErrorType(err) == apperrors.ErrorTypeValidation:
		return exitValidation
	default:
		return exitFailure
	}
}

// init loads configuration, applies flag overrides and builds the logger
// and display service
func (a *app) init(cmd *cobra.Command) error {
	a.loader = config.NewLoader()
	v := a.loader.Viper()
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"logging.level":         "log-level",
		"logging.format":        "log-format",
		"logging.file":          "log-file",
		"display.output_format": "output",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := a.loader.Load(a.opts.configFile)
	if err != nil {
		return backup.NewConfigurationError("failed to load configuration", err)
	}

	if a.opts.quiet {
		cfg.Display.QuietMode = true
		cfg.Display.ShowProgress = false
		if !flags.Changed("log-level") {
			cfg.Logging.Level = string(logging.LogLevelQuiet)
		}
	}
	if a.opts.verbose {
		cfg.Display.VerboseMode = true
		if !flags.Changed("log-level") {
			cfg.Logging.Level = string(logging.LogLevelVerbose)
		}
	}
	if a.opts.noColor {
		cfg.Display.ColorEnabled = false
	}
	if a.opts.noProgress {
		cfg.Display.ShowProgress = false
	}
	cfg.Display.Writer = cmd.OutOrStdout()
	cfg.Display.ErrWriter = cmd.ErrOrStderr()

	logCfg := cfg.Logging.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return backup.NewConfigurationError("failed to create logger", err)
	}

	a.config = cfg
	a.logger = logger
	a.display = display.NewService(&cfg.Display)
	if used := a.loader.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Configuration loaded")
	}
	return nil
}

// store opens the archive directory without touching the database
func (a *app) store() *backup.Store {
	return backup.NewStore(a.config.Backup.ArchiveDir, a.logger)
}

// engine connects to the configured database and builds a backup engine.
// The returned function releases the connection and replica clients.
func (a *app) engine(ctx context.Context) (*backup.Engine, func(), error) {
	dbService := database.NewServiceWithOptions(a.logger, a.config.Database.Timeout, apperrors.DefaultRetryConfig())
	db, dialect, err := dbService.Connect(a.config.Database)
	if err != nil {
		return nil, nil, err
	}

	replicas, err := backup.BuildReplicas(ctx, a.config.Backup.Replicas)
	if err != nil {
		_ = dbService.Close(db)
		return nil, nil, err
	}
	release := func() {
		for _, r := range replicas {
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
		}
		_ = dbService.Close(db)
	}

	opts := []backup.Option{
		backup.WithLogger(a.logger),
		backup.WithToolVersion(version),
		backup.WithReplicas(replicas...),
	}
	if a.progress = a.display.NewProgressPrinter(); a.progress != nil {
		opts = append(opts, backup.WithProgress(a.progress))
	}

	engine, err := backup.NewEngine(db, dialect, &a.config.Backup, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return engine, release, nil
}

// finishProgress ends a progress line left open by a failed operation
func (a *app) finishProgress() {
	if a.progress != nil {
		a.progress.Finish()
	}
}

// errCancelled is returned by confirm when the operator declines
var errCancelled = errors.New("cancelled")

// confirm asks the operator to approve a destructive operation. Prompts go
// to stderr.
func (a *app) confirm(cmd *cobra.Command, summary *confirmation.Summary) error {
	in := cmd.InOrStdin()
	if !a.opts.yes && !confirmation.Interactive(in) {
		return backup.NewValidationError(strings.ToLower(summary.Action)+" needs confirmation", confirmation.ErrConfirmationRequired)
	}

	promptCfg := *a.display.Config()
	promptCfg.Writer = promptCfg.ErrWriter
	cs := confirmation.NewConfirmationService(display.NewService(&promptCfg), in, promptCfg.ErrWriter)

	ok, err := cs.Confirm(cmd.Context(), summary, a.opts.yes)
	if err != nil {
		return err
	}
	if !ok {
		return errCancelled
	}
	return nil
}
