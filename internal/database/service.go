package database

import (
	"context"
	"database/sql"
	"time"

	"dbvault/internal/errors"
	"dbvault/internal/logging"
)

// Service opens and verifies database connections
type Service struct {
	connectionTimeout time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a new database service with default settings
func NewService() *Service {
	return NewServiceWithLogger(logging.NewDefaultLogger())
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// NewServiceWithOptions creates a new database service with custom retry behaviour
func NewServiceWithOptions(logger *logging.Logger, timeout time.Duration, retry errors.RetryConfig) *Service {
	return &Service{
		connectionTimeout: timeout,
		logger:            logger,
		retryHandler:      errors.NewRetryHandler(retry),
	}
}

// Connect opens a pool for the configured driver and pings it, retrying recoverable failures
func (s *Service) Connect(config DatabaseConfig) (*sql.DB, Dialect, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, nil, errors.NewAppError(errors.ErrorTypeValidation, err.Error(), err)
	}

	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return nil, nil, errors.NewAppError(errors.ErrorTypeValidation, err.Error(), err)
	}

	startTime := time.Now()
	s.logger.WithFields(map[string]interface{}{
		"driver": config.Driver,
		"target": config.Target(),
	}).Info("Attempting database connection")
	s.logger.WithField("dsn", logging.SanitizeDSN(config.DSN())).Debug("Resolved connection string")

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	var db *sql.DB
	err = s.retryHandler.Retry(ctx, func() error {
		var openErr error
		db, openErr = sql.Open(config.Driver, config.DSN())
		if openErr != nil {
			return errors.WrapError(openErr, "failed to open database connection")
		}

		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if pingErr := s.TestConnection(db); pingErr != nil {
			db.Close()
			return pingErr
		}
		return nil
	})

	s.logger.LogDatabaseConnection(config.Driver, config.Target(), err == nil, time.Since(startTime), err)
	if err != nil {
		return nil, nil, err
	}

	if version, verr := s.GetVersion(db, dialect); verr != nil {
		s.logger.WithError(verr).Warn("Could not read server version")
	} else {
		s.logger.WithField("server_version", version).Info("Connected to database server")
	}
	return db, dialect, nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}

	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}
	s.logger.Debug("Database connection closed")
	return nil
}

// GetVersion retrieves the server version string
func (s *Service) GetVersion(db *sql.DB, dialect Dialect) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	var version string
	query := dialect.VersionQuery()
	startTime := time.Now()
	err := db.QueryRowContext(ctx, query).Scan(&version)
	s.logger.LogSQLExecution(query, time.Since(startTime), 1, err)
	if err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}
	return version, nil
}
