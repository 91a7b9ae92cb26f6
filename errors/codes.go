// Package errors provides the error handling system for contentsync.
// It extends Go's standard error handling with structured error codes,
// operation context, and sentinel errors usable with errors.Is.
package errors

// ErrorCode represents a specific error condition in a sync run.
// Error codes are string-based for debuggability and natural log output.
type ErrorCode string

const (
	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidPath indicates a relative path could not be placed in a content tree.
	CodeInvalidPath ErrorCode = "INVALID_PATH"

	// Collaborator output errors.

	// CodeMalformedOutput indicates a listing or hashing command produced output
	// that cannot be trusted (for example a path outside the base directory).
	CodeMalformedOutput ErrorCode = "MALFORMED_OUTPUT"

	// CodeMalformedSnapshot indicates a persisted snapshot contains an unparsable line.
	CodeMalformedSnapshot ErrorCode = "MALFORMED_SNAPSHOT"

	// Execution errors.

	// CodeExecutionFailed indicates an external command or transport operation failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// System errors.

	// CodeInternal indicates an internal invariant was violated.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeNotImplemented indicates the requested functionality is not implemented.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
