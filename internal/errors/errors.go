// Package errors defines the coded error taxonomy shared by the engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ParseError indicates a file could not be parsed. File-scoped, non-fatal.
	ParseError ErrorCode = "PARSE_ERROR"
	// KeyFormatError indicates a composed key failed segment validation
	KeyFormatError ErrorCode = "KEY_FORMAT_ERROR"
	// StoreWriteError indicates a transactional batch failed to commit
	StoreWriteError ErrorCode = "STORE_WRITE_ERROR"
	// EntityNotFound indicates a query referenced a key absent from the store
	EntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	// InvalidArgument indicates a caller supplied an unusable parameter
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// IndexMissing indicates no graph database exists yet
	IndexMissing ErrorCode = "INDEX_MISSING"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Command     string `json:"command,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsgError carries a stable code, a message, optional details and the
// underlying cause.
type IsgError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates an IsgError with the default fixes registered for code.
func New(code ErrorCode, message string, cause error) *IsgError {
	return &IsgError{
		Code:           code,
		Message:        message,
		SuggestedFixes: GetSuggestedFixes(code),
		cause:          cause,
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *IsgError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *IsgError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *IsgError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *IsgError) WithDetails(details interface{}) *IsgError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first IsgError in err's chain, or "" when
// there is none.
func CodeOf(err error) ErrorCode {
	var ie *IsgError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var ie *IsgError
		if !stderrors.As(err, &ie) {
			return false
		}
		if ie.Code == code {
			return true
		}
		err = ie.cause
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	IndexMissing: {
		{Command: "isg ingest", Description: "Build the graph for this repository"},
	},
	EntityNotFound: {
		{Command: "isg search <name>", Description: "Look up the current key for the entity"},
		{Command: "isg ingest", Description: "Refresh the graph if the file changed recently"},
	},
	StoreWriteError: {
		{Command: "isg reindex <file>", Description: "Retry the update for the affected file"},
	},
}

// GetSuggestedFixes returns the suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if actions, ok := ErrorActions[code]; ok {
		out := make([]FixAction, len(actions))
		copy(out, actions)
		return out
	}
	return nil
}
