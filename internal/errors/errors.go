// Package errors provides the structured error taxonomy for settld. Every
// failure a statement can produce carries a category, a code, and a
// human-readable message; the executor recovers these at its boundary and
// surfaces them in the result envelope.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by the rule they violate.
type Category string

const (
	CategorySyntax       Category = "SYNTAX"
	CategorySchema       Category = "SCHEMA"
	CategoryNotFound     Category = "NOT_FOUND"
	CategoryType         Category = "TYPE"
	CategoryConstraint   Category = "CONSTRAINT"
	CategoryDuplicateKey Category = "DUPLICATE_KEY"
	CategorySafety       Category = "SAFETY"
	CategoryInternal     Category = "INTERNAL"
)

// Error codes for each category.
const (
	// Syntax codes
	CodeUnexpectedToken    = "UNEXPECTED_TOKEN"
	CodeUnterminatedString = "UNTERMINATED_STRING"
	CodeUnknownType        = "UNKNOWN_TYPE"
	CodeValueCountMismatch = "VALUE_COUNT_MISMATCH"

	// Schema codes
	CodeTableExists         = "TABLE_EXISTS"
	CodeDuplicateColumn     = "DUPLICATE_COLUMN"
	CodeMultiplePrimaryKeys = "MULTIPLE_PRIMARY_KEYS"
	CodeReservedColumn      = "RESERVED_COLUMN"
	CodeSelfJoin            = "SELF_JOIN"

	// Not-found codes
	CodeTableNotFound   = "TABLE_NOT_FOUND"
	CodeColumnNotFound  = "COLUMN_NOT_FOUND"
	CodeAmbiguousColumn = "AMBIGUOUS_COLUMN"

	// Type codes
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeNotComparable = "NOT_COMPARABLE"

	// Constraint codes
	CodeNotNullViolation = "NOT_NULL_VIOLATION"

	// Duplicate-key codes
	CodeDuplicateKey = "DUPLICATE_KEY"

	// Safety codes
	CodeMissingWhere = "MISSING_WHERE"

	// Internal codes
	CodeIOFailure   = "IO_FAILURE"
	CodeCorruptFile = "CORRUPT_FILE"
	CodeUnexpected  = "UNEXPECTED"
)

// EngineError is the structured error type used throughout the system.
type EngineError struct {
	Category  Category
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EngineError.
func New(category Category, code, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new EngineError wrapping an existing error.
func Wrap(category Category, code, message string, cause error) *EngineError {
	return &EngineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EngineError) WithDetails(details map[string]interface{}) *EngineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCategory(err error) Category {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// UserMessage extracts the bare message for presentation in a result
// envelope. Statement errors read better without the category prefix; for
// anything other than an EngineError the full text is returned.
func UserMessage(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}

// isRetryable reports whether an operation failing with this code may
// succeed if repeated. Whole-file writes are idempotent, so I/O failures
// qualify; every statement-level error is deterministic.
func isRetryable(category Category, code string) bool {
	return category == CategoryInternal && code == CodeIOFailure
}

// Convenience constructors for the statement error taxonomy.

func NewSyntaxError(code, message string) *EngineError {
	return New(CategorySyntax, code, message)
}

func NewSchemaError(code, message string) *EngineError {
	return New(CategorySchema, code, message)
}

func NewNotFoundError(code, message string) *EngineError {
	return New(CategoryNotFound, code, message)
}

func NewTypeError(code, message string) *EngineError {
	return New(CategoryType, code, message)
}

func NewConstraintError(message string) *EngineError {
	return New(CategoryConstraint, CodeNotNullViolation, message)
}

func NewDuplicateKeyError(message string) *EngineError {
	return New(CategoryDuplicateKey, CodeDuplicateKey, message)
}

func NewSafetyError(message string) *EngineError {
	return New(CategorySafety, CodeMissingWhere, message)
}

func NewInternalError(message string, cause error) *EngineError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}

func NewIOError(message string, cause error) *EngineError {
	return Wrap(CategoryInternal, CodeIOFailure, message, cause)
}
