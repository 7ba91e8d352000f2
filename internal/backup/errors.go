package backup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOperationInProgress is the cause of every conflict returned by the guard
var ErrOperationInProgress = errors.New("another backup or restore operation is in progress")

// Error represents errors that occur during backup and restore operations
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind classifies an Error
type Kind string

const (
	KindConflict       Kind = "CONFLICT"
	KindValidation     Kind = "VALIDATION"
	KindCorruptArchive Kind = "CORRUPT_ARCHIVE"
	KindIntrospection  Kind = "INTROSPECTION"
	KindRestoreWrite   Kind = "RESTORE_WRITE"
	KindFileTree       Kind = "FILE_TREE"
	KindStorage        Kind = "STORAGE"
	KindNotFound       Kind = "NOT_FOUND"
	KindReplica        Kind = "REPLICA"
	KindConfiguration  Kind = "CONFIGURATION"
)

// NewError creates a new Error
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewConflictError(message string) *Error {
	return NewError(KindConflict, message, ErrOperationInProgress)
}

func NewValidationError(message string, cause error) *Error {
	return NewError(KindValidation, message, cause)
}

func NewCorruptArchiveError(message string, cause error) *Error {
	return NewError(KindCorruptArchive, message, cause)
}

func NewIntrospectionError(message string, cause error) *Error {
	return NewError(KindIntrospection, message, cause)
}

func NewRestoreWriteError(message string, cause error) *Error {
	return NewError(KindRestoreWrite, message, cause)
}

func NewFileTreeError(message string, cause error) *Error {
	return NewError(KindFileTree, message, cause)
}

func NewStorageError(message string, cause error) *Error {
	return NewError(KindStorage, message, cause)
}

func NewNotFoundError(message string, cause error) *Error {
	return NewError(KindNotFound, message, cause)
}

func NewReplicaError(message string, cause error) *Error {
	return NewError(KindReplica, message, cause)
}

func NewConfigurationError(message string, cause error) *Error {
	return NewError(KindConfiguration, message, cause)
}

// KindOf returns the kind of the first Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsCorrupt(err error) bool    { return KindOf(err) == KindCorruptArchive }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }

// IsRetryable reports whether repeating the same call later may succeed.
// Only a busy guard qualifies; every other failure needs operator action.
func IsRetryable(err error) bool {
	return IsConflict(err)
}

// ValidationError represents a single invalid configuration field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value any) {
	*e = append(*e, ValidationError{Field: field, Message: message, Value: value})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
