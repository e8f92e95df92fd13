// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Violation is one broken configuration rule.
type Violation struct {
	Rule    string
	Field   string
	Value   string
	Message string
}

// Err converts the violation to a CodeConfiguration error.
func (v Violation) Err() error {
	return errors.New(errors.CodeConfiguration, v.Message, nil).
		WithContext("rule", v.Rule).
		WithContext("field", v.Field).
		WithContext("value", v.Value)
}

// ValidationResult lists every violated rule in evaluation order.
type ValidationResult struct {
	Violations []Violation
}

// OK reports whether no rule was violated.
func (r ValidationResult) OK() bool { return len(r.Violations) == 0 }

// FirstError returns the first violation as an error, or nil.
func (r ValidationResult) FirstError() error {
	if r.OK() {
		return nil
	}
	return r.Violations[0].Err()
}

// Err joins every violation into a single error, or returns nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Violations))
	for _, v := range r.Violations {
		errs = append(errs, v.Err())
	}
	return stderrors.Join(errs...)
}

func (r ValidationResult) String() string {
	if r.OK() {
		return "configuration is valid"
	}
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, fmt.Sprintf("%s: %s", v.Rule, v.Message))
	}
	return strings.Join(lines, "\n")
}

// Rule identifiers, in evaluation order.
const (
	RuleDevice          = "device"
	RuleBackend         = "backend"
	RuleRetrieval       = "retrieval"
	RuleAudioLang       = "audio_lang"
	RuleAudioInputPath  = "audio_input_path"
	RuleAudioOutputPath = "audio_output_path"
)

// Validate checks cfg against the enumerated sets and the dependent-field
// rules. It has no side effects; "auto" values are accepted here and resolved
// later by detectors.
func Validate(cfg Config) ValidationResult {
	var res ValidationResult
	add := func(rule, field, value, format string, args ...any) {
		res.Violations = append(res.Violations, Violation{
			Rule:    rule,
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if !Devices.Contains(cfg.Device) {
		add(RuleDevice, "device", cfg.Device,
			"invalid device value '%s'. Must be one of %s", cfg.Device, Devices)
	}
	if !Backends.Contains(cfg.Backend) {
		add(RuleBackend, "backend", cfg.Backend,
			"invalid backend value '%s'. Must be one of %s", cfg.Backend, Backends)
	}

	if cfg.Retrieval && (strings.TrimSpace(cfg.RetrievalType) == "" || strings.TrimSpace(cfg.DocumentPath) == "") {
		add(RuleRetrieval, "document_path", cfg.DocumentPath,
			"the retrieval type and document path must be set when retrieval is enabled")
	}

	if cfg.AudioInput || cfg.AudioOutput {
		switch {
		case strings.TrimSpace(cfg.AudioLang) == "":
			add(RuleAudioLang, "audio_lang", cfg.AudioLang,
				"the audio language must be set when audio input or output is enabled")
		case !AudioLang.Contains(cfg.AudioLang):
			add(RuleAudioLang, "audio_lang", cfg.AudioLang,
				"invalid audio language value '%s'. Must be one of %s", cfg.AudioLang, AudioLang)
		}
		if cfg.AudioInput && strings.TrimSpace(cfg.AudioInputPath) == "" {
			add(RuleAudioInputPath, "audio_input_path", "",
				"the audio input path must be set when audio input is enabled")
		}
		if cfg.AudioOutput && strings.TrimSpace(cfg.AudioOutputPath) == "" {
			add(RuleAudioOutputPath, "audio_output_path", "",
				"the audio output path must be set when audio output is enabled")
		}
	}

	return res
}
