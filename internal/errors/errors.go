// Package errors provides standardized error codes for stay-awake.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (autoquit, keepawake, storage, server)
//   - error: The specific error type within that domain
//
// Codes are stable and are what the CLI and the status API report to callers.
// Human-readable messages are carried alongside codes.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error codes by domain.
const (
	// Auto-quit domain - input validation for the deadline
	CodeParseError           = "autoquit.parse_error"            // Malformed duration token stream
	CodeFormatError          = "autoquit.format_error"           // Timestamp does not match the accepted layout
	CodeCalendarError        = "autoquit.calendar_error"         // Impossible civil date or time
	CodeNonexistentLocalTime = "autoquit.nonexistent_local_time" // Civil time skipped by a DST gap
	CodeAmbiguousLocalTime   = "autoquit.ambiguous_local_time"   // Civil time repeated by a DST overlap
	CodeOutOfBounds          = "autoquit.out_of_bounds"          // Deadline outside the allowed window
	CodeConflictingTargets   = "autoquit.conflicting_targets"    // Both a duration and a timestamp supplied
	CodeInvalidCadence       = "autoquit.invalid_cadence"        // Cadence table violates its invariants

	// Keep-awake domain - sleep inhibitor lifecycle
	CodeKeepAwakeUnsupportedEnvironment = "keepawake.unsupported_environment" // No inhibitor path on this host
	CodeKeepAwakeAcquireFailed          = "keepawake.acquire_failed"          // Inhibitor could not be started

	// Storage domain - run history
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data
	CodeStorageNotFound    = "storage.not_found"    // Run not found

	// Server domain - local status API
	CodeServerRateLimited = "server.rate_limited" // Too many API requests
	CodeServerNotRunning  = "server.not_running"  // No running instance answered

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// validationCodes are the codes produced by user input that failed validation.
// The CLI maps them to exit status 2.
var validationCodes = map[string]bool{
	CodeParseError:           true,
	CodeFormatError:          true,
	CodeCalendarError:        true,
	CodeNonexistentLocalTime: true,
	CodeAmbiguousLocalTime:   true,
	CodeOutOfBounds:          true,
	CodeConflictingTargets:   true,
	CodeInvalidCadence:       true,
}

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "autoquit.parse_error")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to API responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// IsValidation reports whether err was caused by invalid user input.
func IsValidation(err error) bool {
	return validationCodes[GetCode(err)]
}

// Common error constructors for the auto-quit input taxonomy.

// ParseError creates an "autoquit.parse_error" error for a duration expression.
func ParseError(input, reason string) *CodedError {
	return New(CodeParseError, fmt.Sprintf("invalid duration %q: %s", input, reason))
}

// FormatError creates an "autoquit.format_error" error.
// The timestamp did not match YYYY-MM-DD HH:MM:SS.
func FormatError(input string) *CodedError {
	return New(CodeFormatError, fmt.Sprintf("invalid timestamp %q (expected YYYY-MM-DD HH:MM:SS)", input))
}

// CalendarError creates an "autoquit.calendar_error" error.
func CalendarError(input, reason string) *CodedError {
	return New(CodeCalendarError, fmt.Sprintf("invalid date/time %q: %s", input, reason))
}

// NonexistentLocalTime creates an "autoquit.nonexistent_local_time" error.
// The civil time falls in a spring-forward gap of the zone.
func NonexistentLocalTime(input string, zone string) *CodedError {
	return New(CodeNonexistentLocalTime, fmt.Sprintf("local time %q does not exist in %s (daylight saving gap)", input, zone))
}

// AmbiguousLocalTime creates an "autoquit.ambiguous_local_time" error.
// The civil time occurs twice because of a fall-back overlap.
func AmbiguousLocalTime(input string, zone string) *CodedError {
	return New(CodeAmbiguousLocalTime, fmt.Sprintf("local time %q is ambiguous in %s (occurs twice, daylight saving overlap)", input, zone))
}

// OutOfBounds creates an "autoquit.out_of_bounds" error.
func OutOfBounds(remaining, min, max time.Duration) *CodedError {
	msg := fmt.Sprintf("auto-quit must be between %s and %s from now (got %s)", min, max, remaining.Truncate(time.Second))
	return New(CodeOutOfBounds, msg)
}

// ConflictingTargets creates an "autoquit.conflicting_targets" error.
func ConflictingTargets() *CodedError {
	return New(CodeConflictingTargets, "use either a duration or a timestamp for auto-quit, not both")
}

// InvalidCadence creates an "autoquit.invalid_cadence" error.
func InvalidCadence(reason string) *CodedError {
	return New(CodeInvalidCadence, fmt.Sprintf("invalid countdown cadence: %s", reason))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
