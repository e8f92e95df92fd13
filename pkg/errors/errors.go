// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for NeuralChat.
//
// Four codes form the command and composition taxonomy: CodeLookupFailure,
// CodeResolutionFailure, CodeConfiguration and CodeExecutionFailure. The rest
// are shared with collaborators (LLM providers, memory backends).
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies NeuralChat errors for monitoring and CLI reporting.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeLookupFailure indicates a command path segment was not found
	// during an explicit lookup.
	CodeLookupFailure ErrorCode = "LOOKUP_FAILURE"

	// CodeResolutionFailure indicates a deferred command reference could not
	// be resolved to an executor factory.
	CodeResolutionFailure ErrorCode = "RESOLUTION_FAILURE"

	// CodeConfiguration indicates an enumerated field holds a disallowed value,
	// a dependent field is missing, or the command table is inconsistent.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeExecutionFailure indicates a command failed while running.
	CodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMemoryError indicates a cache or vector store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeAudioError indicates a speech recognition or synthesis error.
	CodeAudioError ErrorCode = "AUDIO_ERROR"
)

// ChatError is a typed error with context for logs and CLI output.
// It implements the error interface and can be unwrapped with errors.As().
type ChatError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	ExitCode    int
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ChatError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *ChatError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new ChatError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *ChatError {
	return &ChatError{
		Code:     code,
		Message:  msg,
		Err:      cause,
		Context:  make(map[string]interface{}),
		ExitCode: codeToExitCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *ChatError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ChatError) WithContext(key string, value interface{}) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *ChatError) WithRecoverable(recoverable bool) *ChatError {
	e.Recoverable = recoverable
	return e
}

// AsChatError attempts to convert an error to a ChatError.
// Returns the first ChatError in the chain, or wraps err as internal.
func AsChatError(err error) *ChatError {
	if err == nil {
		return nil
	}
	var ce *ChatError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether any ChatError in err's chain carries code.
// Joined errors are searched as well.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*ChatError); ok && ce.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// codeToExitCode maps error codes to process exit statuses used by the CLI.
func codeToExitCode(code ErrorCode) int {
	switch code {
	case CodeConfiguration, CodeInvalidInput:
		return 2
	case CodeLookupFailure, CodeResolutionFailure, CodeNotFound:
		return 3
	default:
		return 1
	}
}
