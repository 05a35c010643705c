package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the structured error type for docrag.
// It carries enough context for logging, retry decisions and CLI output.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_207_PERSISTENCE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is works against the
// exported sentinels below.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AppError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AppError from an existing error.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrValidation   = &AppError{Code: ErrCodeInvalidInput}
	ErrPersistence  = &AppError{Code: ErrCodePersistenceFailed}
	ErrCorruptState = &AppError{Code: ErrCodeCorruptState}
	ErrExtraction   = &AppError{Code: ErrCodeExtractionFailed}
	ErrUnsupported  = &AppError{Code: ErrCodeUnsupportedFormat}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AppError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError reports malformed input, e.g. length-mismatched
// parallel sequences passed to an index add.
func ValidationError(message string, cause error) *AppError {
	return New(ErrCodeInvalidInput, message, cause).
		WithSuggestion("Check the input passed to the index; nothing was written")
}

// PersistenceError reports a durable write or read failure.
func PersistenceError(message string, cause error) *AppError {
	return New(ErrCodePersistenceFailed, message, cause).
		WithSuggestion("Check disk space and permissions of the index directory, then re-run the ingest")
}

// CorruptStateError reports persisted artifacts that exist but cannot be
// read or do not agree with each other.
func CorruptStateError(message string, cause error) *AppError {
	return New(ErrCodeCorruptState, message, cause).
		WithSuggestion("The index was reset; re-ingest your documents")
}

// ExtractionError reports a source file whose text could not be extracted.
func ExtractionError(path string, cause error) *AppError {
	return New(ErrCodeExtractionFailed, fmt.Sprintf("cannot extract text from %s", path), cause).
		WithDetail("path", path)
}

// UnsupportedFormatError reports a source file with no registered extractor.
func UnsupportedFormatError(path string) *AppError {
	return New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file type: %s", path), nil).
		WithDetail("path", path).
		WithSuggestion("Supported inputs are .pdf, .eml and .mbox files")
}

// NetworkError creates a network-related error.
// Network errors are retryable.
func NetworkError(message string, cause error) *AppError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any AppError in err's chain is retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return stderrors.Is(err, ErrValidation) }

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool { return stderrors.Is(err, ErrPersistence) }

// IsCorruptState reports whether err is a CorruptStateError.
func IsCorruptState(err error) bool { return stderrors.Is(err, ErrCorruptState) }

// GetCode extracts the error code from an AppError in err's chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AppError in err's chain.
func GetCategory(err error) Category {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
