package backup

import (
	"context"
	"os"
	"time"

	"dbvault/internal/database"
	"dbvault/internal/logging"
	"dbvault/internal/schema"
)

// Engine creates, restores and manages archives for one database
type Engine struct {
	db           database.DB
	dialect      database.Dialect
	config       *Config
	guard        *Guard
	store        *Store
	replicas     []Replica
	introspector *schema.Introspector
	logger       *logging.Logger
	progress     ProgressSink
	toolVersion  string
	now          func() time.Time
}

// Option customises an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithProgress sets the sink that receives progress events
func WithProgress(sink ProgressSink) Option {
	return func(e *Engine) { e.progress = sink }
}

// WithReplicas adds offsite copy targets
func WithReplicas(replicas ...Replica) Option {
	return func(e *Engine) { e.replicas = append(e.replicas, replicas...) }
}

// WithGuard replaces the process-wide guard
func WithGuard(g *Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithToolVersion records the producing version in new manifests
func WithToolVersion(version string) Option {
	return func(e *Engine) { e.toolVersion = version }
}

// WithClock overrides the time source used for names and retention
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over db. The config is copied and defaulted.
func NewEngine(db database.DB, dialect database.Dialect, config *Config, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, NewConfigurationError("database handle is required", nil)
	}
	if dialect == nil {
		return nil, NewConfigurationError("database dialect is required", nil)
	}

	cfg := DefaultConfig()
	if config != nil {
		c := *config
		c.SetDefaults()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup configuration", err)
	}

	e := &Engine{
		db:       db,
		dialect:  dialect,
		config:   cfg,
		guard:    ProcessGuard(),
		progress: discardProgress{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewDiscardLogger()
	}
	e.store = NewStore(cfg.ArchiveDir, e.logger)
	e.introspector = schema.NewIntrospector(dialect, e.logger)
	return e, nil
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return *e.config
}

// Store returns the archive directory manager
func (e *Engine) Store() *Store {
	return e.store
}

// ListBackups returns every archive, newest first
func (e *Engine) ListBackups() ([]ArchiveInfo, error) {
	return e.store.List()
}

// GetBackupInfo returns the manifest and file details of one archive
func (e *Engine) GetBackupInfo(filename string) (*ArchiveDetails, error) {
	return e.store.Info(filename)
}

// DeleteBackup removes an archive locally and, best effort, from replicas
func (e *Engine) DeleteBackup(ctx context.Context, filename string) error {
	if err := e.store.Delete(filename); err != nil {
		return err
	}
	deleteAll(ctx, e.replicas, filename, e.logger)
	return nil
}

// CleanupOldBackups deletes archives older than retentionDays. A value
// below one uses the configured retention.
func (e *Engine) CleanupOldBackups(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays < 1 {
		retentionDays = e.config.RetentionDays
	}

	result, err := e.store.Cleanup(retentionDays, e.now())
	if result != nil {
		for _, name := range result.Deleted {
			deleteAll(ctx, e.replicas, name, e.logger)
		}
		e.logger.WithFields(map[string]interface{}{
			"retention_days": retentionDays,
			"deleted":        len(result.Deleted),
			"remaining":      result.Remaining,
		}).Info("Archive cleanup finished")
	}
	return result, err
}

// makeSpool creates a private temporary directory for one operation
func (e *Engine) makeSpool(pattern string) (string, error) {
	if err := e.store.ensure(); err != nil {
		return "", err
	}
	parent := e.config.spoolDir()
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", NewStorageError("failed to create work directory", err).WithContext("dir", parent)
	}
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return "", NewStorageError("failed to create spool directory", err).WithContext("dir", parent)
	}
	return dir, nil
}
