package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a sync error with context about the operation that failed.
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// Op is the operation that failed (e.g., "add file", "parse snapshot", "copy")
	Op string

	// Path is the path involved in the failure (if applicable)
	Path string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("contentsync.%s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("contentsync.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath adds path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// NewError creates a new Error with the given code, operation and underlying error.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Err:  err,
	}
}

// NewPathError creates a new Error with path context.
func NewPathError(code ErrorCode, op, path string, err error) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// CommandError reports an external command that exited with a non-zero status.
type CommandError struct {
	// Description identifies the failing command for diagnostics.
	Description string

	// ExitCode is the exit status of the command (-1 when it did not exit normally).
	ExitCode int

	// Stderr holds the captured standard error output, if any.
	Stderr string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit status = %d", e.Description, e.ExitCode)
	if e.ExitCode < 0 {
		msg = fmt.Sprintf("%s: process did not exit normally", e.Description)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Is makes every CommandError match ErrCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// Sentinel errors for common sync failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("contentsync: invalid input")

	// ErrInvalidPath indicates an empty or otherwise unusable relative path
	ErrInvalidPath = errors.New("contentsync: invalid path")

	// ErrEmptyHash indicates a file was added without a content hash
	ErrEmptyHash = errors.New("contentsync: empty hash")

	// ErrMalformedListing indicates listing or hashing output that cannot be trusted
	ErrMalformedListing = errors.New("contentsync: malformed listing output")

	// ErrMalformedSnapshot indicates an unparsable snapshot line
	ErrMalformedSnapshot = errors.New("contentsync: malformed snapshot")

	// ErrCommandFailed indicates that an external command exited unsuccessfully
	ErrCommandFailed = errors.New("contentsync: command failed")
)

// IsInvalidPath checks if an error indicates an invalid tree path.
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsMalformedListing checks if an error indicates untrusted collaborator output.
func IsMalformedListing(err error) bool {
	return errors.Is(err, ErrMalformedListing)
}

// IsMalformedSnapshot checks if an error indicates an unparsable snapshot.
func IsMalformedSnapshot(err error) bool {
	return errors.Is(err, ErrMalformedSnapshot)
}

// IsCommandFailed checks if an error indicates a failed external command.
func IsCommandFailed(err error) bool {
	return errors.Is(err, ErrCommandFailed)
}

// CodeOf returns the ErrorCode carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return CodeExecutionFailed
	}
	return CodeUnknown
}
