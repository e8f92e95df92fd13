// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("no such location")
	ce := New(CodeResolutionFailure, "cannot resolve textchat", cause)

	if ce.Code != CodeResolutionFailure {
		t.Errorf("expected CodeResolutionFailure, got %v", ce.Code)
	}
	if ce.Message != "cannot resolve textchat" {
		t.Errorf("unexpected message %q", ce.Message)
	}
	if !errors.Is(ce, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	ce := New(CodeConfiguration, "invalid device", nil)
	ce.WithContext("field", "device").WithContext("value", "tpu")

	if ce.Context["field"] != "device" {
		t.Errorf("expected context field to be 'device'")
	}
	if ce.Context["value"] != "tpu" {
		t.Errorf("expected context value to be 'tpu'")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		ce       *ChatError
		expected string
	}{
		{
			name:     "with cause",
			ce:       New(CodeLookupFailure, "path not found", errors.New("segment \"x\"")),
			expected: "[LOOKUP_FAILURE] path not found: segment \"x\"",
		},
		{
			name:     "without cause",
			ce:       New(CodeConfiguration, "device is invalid", nil),
			expected: "[CONFIGURATION_ERROR] device is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ce.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsChatError(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", New(CodeResolutionFailure, "missing", nil))

	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "already ChatError", err: New(CodeExecutionFailure, "failed", nil), expected: CodeExecutionFailure},
		{name: "wrapped ChatError", err: wrapped, expected: CodeResolutionFailure},
		{name: "generic error", err: errors.New("generic error"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := AsChatError(tt.err)
			if tt.expected == "" {
				if ce != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if ce == nil {
				t.Fatalf("expected non-nil ChatError")
			}
			if ce.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, ce.Code)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	joined := errors.Join(
		New(CodeConfiguration, "device", nil),
		New(CodeConfiguration, "backend", nil),
	)
	if !HasCode(joined, CodeConfiguration) {
		t.Fatalf("expected joined errors to carry CodeConfiguration")
	}
	if HasCode(joined, CodeLookupFailure) {
		t.Fatalf("unexpected CodeLookupFailure")
	}
	if !HasCode(fmt.Errorf("outer: %w", New(CodeLookupFailure, "x", nil)), CodeLookupFailure) {
		t.Fatalf("expected wrapped code to be found")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatalf("nil error has no code")
	}
}

func TestMarshalJSON(t *testing.T) {
	ce := New(CodeExecutionFailure, "textchat failed", errors.New("provider down"))
	ce.WithContext("command", "textchat").WithRecoverable(true)

	data, err := json.Marshal(ce)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if result["code"] != "EXECUTION_FAILURE" {
		t.Errorf("expected code 'EXECUTION_FAILURE', got %v", result["code"])
	}
	if result["error"] != "provider down" {
		t.Errorf("expected cause in error field, got %v", result["error"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeConfiguration, 2},
		{CodeInvalidInput, 2},
		{CodeLookupFailure, 3},
		{CodeResolutionFailure, 3},
		{CodeExecutionFailure, 1},
		{CodeInternal, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test", nil).ExitCode; got != tt.expected {
				t.Errorf("expected exit %d, got %d", tt.expected, got)
			}
		})
	}
}
