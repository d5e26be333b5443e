// Package errors provides structured error handling for PlantPulse.
// Errors carry codes for programmatic handling, key-value context, and a
// captured stack trace.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Ingestion errors (1xx)
	CodeSourceNotFound Code = "E101"
	CodeSourceRead     Code = "E102"
	CodeInvalidFormat  Code = "E103"
	CodeMissingColumn  Code = "E104"
	CodeInvalidDate    Code = "E105"

	// Aggregation errors (2xx)
	CodeInvalidCriteria Code = "E201"
	CodeJobFailed       Code = "E202"
	CodeDatasetNotReady Code = "E203"

	// Export errors (3xx)
	CodeExportFailed Code = "E301"

	// System errors (4xx)
	CodeCanceled      Code = "E401"
	CodeTimeout       Code = "E402"
	CodeWorkerPanic   Code = "E403"
	CodeJobSuperseded Code = "E404"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all PlantPulse errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeUnknown
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// SourceNotFound reports a missing dataset source.
func SourceNotFound(path string) *Error {
	return New(CodeSourceNotFound, "dataset source not found").WithContext("path", path)
}

// MissingColumn reports a required column absent from the header.
func MissingColumn(column string, available []string) *Error {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidDate reports an unparseable date cell.
func InvalidDate(value string, row int) *Error {
	return New(CodeInvalidDate, "failed to parse date").
		WithContext("value", value).
		WithContext("row", row)
}

// WorkerPanic reports a recovered panic inside a shard aggregation task.
func WorkerPanic(shard int, recovered interface{}) *Error {
	return New(CodeWorkerPanic, "shard aggregation panicked").
		WithContext("shard", shard).
		WithContext("panic", fmt.Sprintf("%v", recovered))
}

// JobSuperseded reports a job canceled because a newer request replaced it.
func JobSuperseded(jobID, newerID int64) *Error {
	return New(CodeJobSuperseded, "job superseded by newer request").
		WithContext("job_id", jobID).
		WithContext("superseded_by", newerID)
}
