package main

import (
	"fmt"
	"io"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// CLIError wraps ChatError with a hint for the user.
type CLIError struct {
	*errors.ChatError
	Hint string
}

// NewCLIError attaches the hint registered for the error's code.
func NewCLIError(err error) *CLIError {
	ce := errors.AsChatError(err)
	return &CLIError{ChatError: ce, Hint: hintFor(ce)}
}

// Error returns the formatted error message with its hint.
func (e *CLIError) Error() string {
	if e.ChatError == nil {
		return "unknown error"
	}
	msg := e.ChatError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Print writes "Error [CODE]: message" and the hint to w.
func (e *CLIError) Print(w io.Writer) {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, msg)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

func hintFor(e *errors.ChatError) string {
	switch e.Code {
	case errors.CodeConfiguration:
		return "check the file given with --config and the NEURALCHAT_ environment variables"
	case errors.CodeLookupFailure:
		return "run 'neuralchat help' to list the available commands"
	case errors.CodeResolutionFailure:
		return "the command is registered but its implementation is not available in this build"
	default:
		return ""
	}
}

// printError reports err on w and returns the exit status for it.
func printError(w io.Writer, err error) int {
	ce := NewCLIError(err)
	ce.Print(w)
	return ce.ExitCode
}
