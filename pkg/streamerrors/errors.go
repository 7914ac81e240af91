// Package streamerrors provides the structured error model shared by every
// stage of a pgstream export: connecting, driving COPY, framing and decoding.
//
// # Overview
//
// Errors are categorized by ErrorType. The export path only ever produces
// three categories:
//   - ErrorTypeTransport: IO and framing failures (closed connection,
//     truncated frame, bad signature, unsupported format variant)
//   - ErrorTypeDriver: failures reported by the server (bad SQL, permissions)
//   - ErrorTypeDecode: a value whose bytes do not match the requested type
//
// The configuration layer adds ErrorTypeConfig and ErrorTypeValidation.
//
// # Plain data
//
// An *Error carries no live handles once rendered: the cause is kept for
// errors.Is/errors.As inside the process, but its text is captured in
// CauseText so that the value survives a JSON round trip with the same
// rendering. Equal compares errors by category and rendered text.
//
// # Basic Usage
//
//	if err := conn.Close(ctx); err != nil {
//	    return streamerrors.Wrap(err, streamerrors.ErrorTypeTransport, "failed to close connection").
//	        WithDetail("host", host)
//	}
package streamerrors

import (
	"errors"
	"runtime"

	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeTransport represents channel and IO failures, including malformed frames
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeDriver represents failures reported by the database server
	ErrorTypeDriver ErrorType = "driver"
	// ErrorTypeDecode represents values that do not match the requested type
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: the error category
//   - Message: human-readable description
//   - Cause: the underlying error, in-process only
//   - CauseText: the rendered cause, kept across serialization
//   - Details: key-value pairs providing additional context
//   - Stack: call stack at the point of creation
type Error struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	CauseText string                 `json:"cause,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Stack     []StackFrame           `json:"stack,omitempty"`
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.CauseText != "" {
		return stringpool.Sprintf("%s: %s: %s", e.Type, e.Message, e.CauseText)
	}
	return stringpool.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
//
// Example:
//
//	err := streamerrors.New(streamerrors.ErrorTypeDecode, "unexpected NULL").
//	    WithDetail("oid", oid)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Equal reports whether two errors are the same category with the same
// rendered text. Transport causes are native IO errors that cannot be
// compared structurally, so the comparison is textual for every category.
func (e *Error) Equal(other *Error) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Type == other.Type && e.Error() == other.Error()
}

// New creates a new error with the given type and message, capturing the call stack.
//
// Example:
//
//	if len(hosts) == 0 {
//	    return streamerrors.New(streamerrors.ErrorTypeConfig, "at least one host is required")
//	}
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a category and message, preserving the
// original as the cause. If err is already an *Error its stack is kept.
// Returns nil if err is nil.
//
// Example:
//
//	if _, err := conn.CopyTo(ctx, w, sql); err != nil {
//	    return streamerrors.Wrap(err, streamerrors.ErrorTypeTransport, "copy failed").
//	        WithDetail("query", sql)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:      errType,
			Message:   message,
			Cause:     err,
			CauseText: err.Error(),
			Stack:     existingErr.Stack,
		}
	}

	return &Error{
		Type:      errType,
		Message:   message,
		Cause:     err,
		CauseText: err.Error(),
		Stack:     captureStack(2),
	}
}

// IsType reports whether any *Error in err's chain has the given type. Use
// TypeOf for the category of the outermost one.
//
// Example:
//
//	if streamerrors.IsType(err, streamerrors.ErrorTypeDriver) {
//	    // the server rejected the export; the connection itself was fine
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the category of the outermost *Error in the chain, or ""
// if there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the given number of frames.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
