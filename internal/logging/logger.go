package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses everything except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose adds per-table and per-batch detail
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows every statement executed
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging on top of logrus
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// ParseLevel maps a configuration string onto a LogLevel, defaulting to normal
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LogLevelQuiet, LogLevelVerbose, LogLevelDebug:
		return LogLevel(s)
	default:
		return LogLevelNormal
	}
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	logger.SetOutput(output)

	textFormatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	if config.ShowCaller {
		logger.SetReportCaller(true)
		textFormatter.CallerPrettyfier = func(f *runtime.Frame) (string, string) {
			return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		}
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(textFormatter)
	}

	logger.SetLevel(toLogrusLevel(config.Level))

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		logger.SetOutput(io.MultiWriter(output, file))
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a text logger at normal level writing to stderr
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stderr,
		Format: "text",
	})
	return logger
}

// NewDiscardLogger creates a logger that drops everything. Used by tests and library callers
// that did not supply a logger.
func NewDiscardLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelQuiet,
		Output: io.Discard,
	})
	return logger
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelQuiet:
		return logrus.ErrorLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	case LogLevelDebug:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// WithFields returns a logger entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// WithError returns a logger entry carrying err
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// LogDatabaseConnection logs database connection attempts
func (l *Logger) LogDatabaseConnection(driver, target string, success bool, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "database_connection",
		"driver":    driver,
		"target":    target,
		"duration":  duration.String(),
		"success":   success,
	}

	if success {
		l.logger.WithFields(fields).Info("Database connection established")
		return
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.logger.WithFields(fields).Error("Database connection failed")
}

// LogSQLExecution logs a single statement at trace level, or at error level when it failed
func (l *Logger) LogSQLExecution(sql string, duration time.Duration, rowsAffected int64, err error) {
	fields := logrus.Fields{
		"operation":     "sql_execution",
		"duration":      duration.String(),
		"rows_affected": rowsAffected,
	}

	if len(sql) > 200 {
		fields["sql"] = sql[:200] + "..."
		fields["sql_length"] = len(sql)
	} else {
		fields["sql"] = sql
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("SQL execution failed")
		return
	}
	l.logger.WithFields(fields).Trace("SQL executed")
}

// LogSchemaIntrospection logs the outcome of reading the live catalog
func (l *Logger) LogSchemaIntrospection(database string, tableCount int, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation":   "schema_introspection",
		"database":    database,
		"table_count": tableCount,
		"duration":    duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Schema introspection failed")
		return
	}
	l.logger.WithFields(fields).Debug("Schema introspection completed")
}

// LogTableTransfer logs rows moved for one table during export or import
func (l *Logger) LogTableTransfer(direction, table string, rows int64, duration time.Duration) {
	l.logger.WithFields(logrus.Fields{
		"operation": "table_" + direction,
		"table":     table,
		"rows":      rows,
		"duration":  duration.String(),
	}).Debug("Table transferred")
}

// LogSecurityEvent records a rejected request such as an unsafe archive filename
func (l *Logger) LogSecurityEvent(event string, fields map[string]interface{}) {
	logFields := logrus.Fields{
		"security_event": event,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	l.logger.WithFields(logFields).Warn("Security event")
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(toLogrusLevel(level))
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	return l.logger.IsLevelEnabled(toLogrusLevel(level))
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		logFields["status"] = "completed"
		logFields["duration"] = time.Since(startTime).String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
			return
		}
		logFields["success"] = true
		l.logger.WithFields(logFields).Info("Operation completed")
	}
}

var dsnPasswordPattern = regexp.MustCompile(`(?i)(password=)('[^']*'|"[^"]*"|\S+)`)
var dsnUserinfoPattern = regexp.MustCompile(`^([^:/@]+):([^@]*)@`)
var urlUserinfoPattern = regexp.MustCompile(`(://[^:/@]+):([^@]*)@`)

// SanitizeDSN masks passwords in MySQL DSNs, PostgreSQL URLs and key=value connection strings
func SanitizeDSN(dsn string) string {
	dsn = dsnPasswordPattern.ReplaceAllString(dsn, "${1}***")
	if strings.Contains(dsn, "://") {
		return urlUserinfoPattern.ReplaceAllString(dsn, "${1}:***@")
	}
	return dsnUserinfoPattern.ReplaceAllString(dsn, "${1}:***@")
}
