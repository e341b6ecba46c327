package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Feed errors
	ErrCodeFeedParse        ErrorCode = "FEED_PARSE"
	ErrCodeMissingElement   ErrorCode = "MISSING_ELEMENT"
	ErrCodeNoAudioEnclosure ErrorCode = "NO_AUDIO_ENCLOSURE"
	ErrCodeNaming           ErrorCode = "NAMING"

	// Transfer and media errors
	ErrCodeNetwork ErrorCode = "NETWORK"
	ErrCodeDecode  ErrorCode = "DECODE"

	// Output errors
	ErrCodeFilesystem ErrorCode = "FILESYSTEM"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Process exit codes, one per error family
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitConfig     = 2
	ExitFeed       = 3
	ExitNoAudio    = 4
	ExitNetwork    = 5
	ExitDecode     = 6
	ExitFilesystem = 7
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// ExitCode returns the process exit code for this error
func (e *AppError) ExitCode() int {
	return exitCodeFor(e.Code)
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(cause error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(cause error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func exitCodeFor(code ErrorCode) int {
	switch code {
	case ErrCodeConfigInvalid:
		return ExitConfig
	case ErrCodeFeedParse, ErrCodeMissingElement, ErrCodeNaming:
		return ExitFeed
	case ErrCodeNoAudioEnclosure:
		return ExitNoAudio
	case ErrCodeNetwork:
		return ExitNetwork
	case ErrCodeDecode:
		return ExitDecode
	case ErrCodeFilesystem:
		return ExitFilesystem
	default:
		return ExitInternal
	}
}

// Common error constructors

// ConfigError creates a configuration error
func ConfigError(key string, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("configuration error for '%s': %s", key, reason)).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

// FeedParseError creates an error for a malformed or unreachable feed source
func FeedParseError(source string, cause error) *AppError {
	return Wrap(cause, ErrCodeFeedParse, fmt.Sprintf("cannot parse feed '%s'", source)).
		WithDetail("source", source)
}

// MissingElementError creates an error for a feed item lacking a required element
func MissingElementError(element string, position int) *AppError {
	return New(ErrCodeMissingElement, fmt.Sprintf("item %d has no '%s' element", position, element)).
		WithDetail("element", element).
		WithDetail("position", position)
}

// NoAudioEnclosureError creates an error for an entry without an audio link
func NoAudioEnclosureError(title string) *AppError {
	return New(ErrCodeNoAudioEnclosure, fmt.Sprintf("entry '%s' has no audio enclosure", title)).
		WithDetail("title", title)
}

// NamingError creates an error for an episode no output filename can be derived for
func NamingError(title string, reason string) *AppError {
	return New(ErrCodeNaming, fmt.Sprintf("cannot name episode '%s': %s", title, reason)).
		WithDetail("title", title).
		WithDetail("reason", reason)
}

// NetworkError creates an error for a failed fetch
func NetworkError(url string, cause error) *AppError {
	return Wrap(cause, ErrCodeNetwork, fmt.Sprintf("fetching '%s' failed", url)).
		WithDetail("url", url)
}

// StatusError creates a network error for a non-success HTTP status
func StatusError(url string, status int) *AppError {
	return New(ErrCodeNetwork, fmt.Sprintf("fetching '%s' failed: server returned status %d", url, status)).
		WithDetail("url", url).
		WithDetail("status", status)
}

// DecodeError creates an error for an undecodable audio payload
func DecodeError(file string, cause error) *AppError {
	return Wrap(cause, ErrCodeDecode, fmt.Sprintf("cannot decode audio '%s'", file)).
		WithDetail("file", file)
}

// FilesystemError creates an error for a failed filesystem operation
func FilesystemError(operation, path string, cause error) *AppError {
	return Wrap(cause, ErrCodeFilesystem, fmt.Sprintf("%s '%s' failed", operation, path)).
		WithDetail("operation", operation).
		WithDetail("path", path)
}

// Is checks whether err, or anything it wraps, is an AppError with the given code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// ExitCode extracts the process exit code from an error
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return exitCodeFor(GetCode(err))
}
