package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeConnection represents database connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeSQL represents SQL execution errors
	ErrorTypeSQL ErrorType = "sql"
	// ErrorTypeSchema represents missing tables or columns
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeConstraint represents key and referential integrity violations
	ErrorTypeConstraint ErrorType = "constraint"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewRecoverableError creates a new recoverable error
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	appErr := NewAppError(errorType, message, cause)
	appErr.Recoverable = true
	return appErr
}

// ErrorClassifier maps driver, network and filesystem errors onto AppError categories
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	classifiers := []func(error) *AppError{
		ec.classifyMySQLError,
		ec.classifyPostgresError,
		ec.classifySQLiteError,
		ec.classifySQLError,
		ec.classifyNetworkError,
		ec.classifyContextError,
		ec.classifyFileSystemError,
	}
	for _, classify := range classifiers {
		if classified := classify(err); classified != nil {
			return classified
		}
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMySQLError classifies MySQL server error numbers
func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return nil
	}

	var appErr *AppError
	switch mysqlErr.Number {
	case 1044, 1045: // access denied
		appErr = NewAppError(ErrorTypePermission, "Database access denied - check username and password", err)
	case 1049: // unknown database
		appErr = NewAppError(ErrorTypeValidation, "Database does not exist", err)
	case 1146: // table doesn't exist
		appErr = NewAppError(ErrorTypeSchema, "Table does not exist", err)
	case 1054: // unknown column
		appErr = NewAppError(ErrorTypeSchema, "Column does not exist", err)
	case 1062: // duplicate entry
		appErr = NewAppError(ErrorTypeConstraint, "Duplicate entry - record already exists", err)
	case 1451, 1452: // foreign key violation
		appErr = NewAppError(ErrorTypeConstraint, "Foreign key constraint violated", err)
	case 1205, 1213: // lock wait timeout, deadlock
		appErr = NewRecoverableError(ErrorTypeTimeout, "Lock wait timeout or deadlock", err)
	case 1064:
		appErr = NewAppError(ErrorTypeSQL, "SQL syntax error", err)
	case 2003:
		appErr = NewRecoverableError(ErrorTypeConnection, "Cannot connect to MySQL server - server may be down or unreachable", err)
	case 2006:
		appErr = NewRecoverableError(ErrorTypeConnection, "MySQL server connection lost", err)
	default:
		appErr = NewAppError(ErrorTypeSQL, fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err)
	}
	return appErr.WithContext("mysql_error_code", mysqlErr.Number)
}

// classifyPostgresError classifies PostgreSQL SQLSTATE codes reported by lib/pq
func (ec *ErrorClassifier) classifyPostgresError(err error) *AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	var appErr *AppError
	switch {
	case pqErr.Code == "42P01":
		appErr = NewAppError(ErrorTypeSchema, "Table does not exist", err)
	case pqErr.Code == "42703":
		appErr = NewAppError(ErrorTypeSchema, "Column does not exist", err)
	case pqErr.Code == "42601":
		appErr = NewAppError(ErrorTypeSQL, "SQL syntax error", err)
	case pqErr.Code == "40P01" || pqErr.Code == "55P03":
		appErr = NewRecoverableError(ErrorTypeTimeout, "Lock not available or deadlock detected", err)
	case pqErr.Code.Class() == "23":
		appErr = NewAppError(ErrorTypeConstraint, fmt.Sprintf("Integrity constraint violated: %s", pqErr.Code.Name()), err)
	case pqErr.Code.Class() == "28" || pqErr.Code == "42501":
		appErr = NewAppError(ErrorTypePermission, "Database access denied", err)
	case pqErr.Code.Class() == "3D":
		appErr = NewAppError(ErrorTypeValidation, "Database does not exist", err)
	case pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57":
		appErr = NewRecoverableError(ErrorTypeConnection, "PostgreSQL connection unavailable", err)
	default:
		appErr = NewAppError(ErrorTypeSQL, fmt.Sprintf("PostgreSQL error: %s", pqErr.Message), err)
	}
	return appErr.WithContext("sqlstate", string(pqErr.Code))
}

// classifySQLiteError classifies sqlite3 result codes
func (ec *ErrorClassifier) classifySQLiteError(err error) *AppError {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return nil
	}

	var appErr *AppError
	switch liteErr.Code {
	case sqlite3.ErrConstraint:
		appErr = NewAppError(ErrorTypeConstraint, "Integrity constraint violated", err)
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		appErr = NewRecoverableError(ErrorTypeTimeout, "Database file is locked", err)
	case sqlite3.ErrCantOpen:
		appErr = NewAppError(ErrorTypeConnection, "Unable to open database file", err)
	case sqlite3.ErrPerm, sqlite3.ErrAuth, sqlite3.ErrReadonly:
		appErr = NewAppError(ErrorTypePermission, "Database file is not writable", err)
	default:
		appErr = NewAppError(ErrorTypeSQL, fmt.Sprintf("SQLite error: %s", liteErr.Code.Error()), err)
	}
	return appErr.WithContext("sqlite_error_code", int(liteErr.Code))
}

// classifySQLError classifies database/sql sentinel errors
func (ec *ErrorClassifier) classifySQLError(err error) *AppError {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewAppError(ErrorTypeValidation, "No rows found", err)
	case errors.Is(err, sql.ErrTxDone):
		return NewAppError(ErrorTypeSQL, "Transaction has already been committed or rolled back", err)
	case errors.Is(err, sql.ErrConnDone):
		return NewRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	return nil
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRecoverableError(ErrorTypeTimeout, "Network operation timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverableError(ErrorTypeConnection, "Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverableError(ErrorTypeConnection, "Network I/O error", err)
		}
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRecoverableError(ErrorTypeTimeout, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}
	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		return nil
	}

	switch {
	case errors.Is(pathErr.Err, syscall.ENOENT):
		return NewAppError(ErrorTypeValidation, fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
	case errors.Is(pathErr.Err, syscall.EACCES):
		return NewAppError(ErrorTypePermission, fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
	case errors.Is(pathErr.Err, syscall.ENOSPC):
		return NewAppError(ErrorTypeValidation, "No space left on device", err)
	}
	return nil
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryHandler retries operations that fail with recoverable errors
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config:     config,
		classifier: NewErrorClassifier(),
	}
}

// NewDefaultRetryHandler creates a retry handler with default configuration
func NewDefaultRetryHandler() *RetryHandler {
	return NewRetryHandler(DefaultRetryConfig())
}

// Retry executes operation until it succeeds, fails permanently or attempts run out
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewAppError(ErrorTypeInterruption, "Operation canceled", err)
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		appErr := rh.classifier.ClassifyError(err)
		if !appErr.IsRecoverable() {
			return appErr
		}

		if attempt == rh.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", ctx.Err())
		case <-time.After(rh.calculateDelay(attempt)):
		}
	}

	return rh.classifier.ClassifyError(lastErr).
		WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay returns BaseDelay * Multiplier^(attempt-1), capped at MaxDelay
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rh.config.Multiplier
	}

	delay := time.Duration(float64(rh.config.BaseDelay) * multiplier)
	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}
	return delay
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// Classify is a shorthand for NewErrorClassifier().ClassifyError
func Classify(err error) *AppError {
	return NewErrorClassifier().ClassifyError(err)
}

// FormatUserError formats an error for display to users
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.GetUserMessage()
	}
	return "An unexpected error occurred. Please check the logs for more details."
}

// WrapError wraps an existing error with a message, keeping its classification
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := NewAppError(appErr.Type, message, err)
		wrapped.Recoverable = appErr.Recoverable
		return wrapped
	}

	classified := NewErrorClassifier().ClassifyError(err)
	classified.Message = message
	return classified
}
