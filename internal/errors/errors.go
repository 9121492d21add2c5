// Package errors defines the stable error taxonomy for the selector pipeline.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes.
type ErrorCode string

const (
	// VCSUnavailable indicates git is missing or this is not a repository
	VCSUnavailable ErrorCode = "VCS_UNAVAILABLE"
	// VCSCommandFailed indicates a git query failed or timed out
	VCSCommandFailed ErrorCode = "VCS_COMMAND_FAILED"
	// DiffParseFailed indicates unified diff text could not be parsed
	DiffParseFailed ErrorCode = "DIFF_PARSE_FAILED"
	// OracleUnavailable indicates the suggestion service is unreachable
	OracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"
	// OracleMalformed indicates the suggestion service returned an unusable body
	OracleMalformed ErrorCode = "ORACLE_MALFORMED"
	// RunnerMissing indicates the test runner binary could not be started
	RunnerMissing ErrorCode = "RUNNER_MISSING"
	// Timeout indicates an operation exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// HistoryStoreFailed indicates the history database could not be opened or written
	HistoryStoreFailed ErrorCode = "HISTORY_STORE_FAILED"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction suggests a command the user can run to resolve an error.
type FixAction struct {
	Command     string `json:"command"`
	Safe        bool   `json:"safe,omitempty"`
	Description string `json:"description,omitempty"`
}

// SelError represents a selector error with a stable code and optional fixes.
type SelError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new SelError.
func New(code ErrorCode, message string, cause error) *SelError {
	return &SelError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes[code],
	}
}

// Error implements the error interface.
func (e *SelError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *SelError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error.
func (e *SelError) WithDetails(details interface{}) *SelError {
	e.Details = details
	return e
}

// suggestedFixes maps error codes to fix actions the CLI prints alongside
// the error message.
var suggestedFixes = map[ErrorCode][]FixAction{
	VCSUnavailable: {
		{
			Command:     "git status",
			Safe:        true,
			Description: "Verify you're in a git repository",
		},
	},
	OracleUnavailable: {
		{
			Command:     "curl -s http://localhost:11434/api/tags",
			Safe:        true,
			Description: "Check that the suggestion service is running",
		},
	},
	RunnerMissing: {
		{
			Command:     "pytest --version",
			Safe:        true,
			Description: "Verify the test runner is installed and on PATH",
		},
	},
}

// CodeOf returns the error code of err if it is a SelError, or InternalError.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*SelError); ok {
		return e.Code
	}
	return InternalError
}
