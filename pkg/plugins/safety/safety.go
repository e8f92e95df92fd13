// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package safety provides the safety-checker plugin: input checkers that can
// block a prompt and output filters that mask model responses.
//
//	p := safety.New(safety.WithChecker(safety.NewSensitiveChecker()))
//	if res := p.CheckInput(ctx, prompt); res.Blocked {
//	    return res.Reason
//	}
//	reply = p.FilterOutput(ctx, reply).Content
package safety

import (
	"context"
)

// CheckResult represents the outcome of an input check.
type CheckResult struct {
	Blocked bool
	// Reason explains why content was blocked (empty if not blocked).
	Reason string
	// CheckerID identifies which checker triggered the block.
	CheckerID string
	// Matches lists the offending terms.
	Matches []string
}

// FilterResult represents the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction describes a single content modification.
type Redaction struct {
	Type        string
	Original    string
	Replacement string
	// Position is the byte offset in the filtered content.
	Position int
}

// InputChecker validates content before it reaches the model.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// OutputFilter processes model output before it is returned.
type OutputFilter interface {
	FilterOutput(ctx context.Context, output string) FilterResult
	ID() string
}

// Checker is what the chatbot's safety slot holds.
type Checker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	FilterOutput(ctx context.Context, output string) FilterResult
}

// Pipeline runs input checkers in order and chains output filters.
type Pipeline struct {
	inputCheckers []InputChecker
	outputFilters []OutputFilter
	failOpen      bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// New creates a Pipeline. It is fail-closed unless WithFailOpen is given.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithInputChecker adds an input checker.
func WithInputChecker(c InputChecker) Option {
	return func(p *Pipeline) { p.inputCheckers = append(p.inputCheckers, c) }
}

// WithOutputFilter adds an output filter.
func WithOutputFilter(f OutputFilter) Option {
	return func(p *Pipeline) { p.outputFilters = append(p.outputFilters, f) }
}

// WithChecker adds c as both an input checker and an output filter.
func WithChecker(c interface {
	InputChecker
	OutputFilter
}) Option {
	return func(p *Pipeline) {
		p.inputCheckers = append(p.inputCheckers, c)
		p.outputFilters = append(p.outputFilters, c)
	}
}

// WithFailOpen lets content through when the context is cancelled mid-check.
func WithFailOpen(failOpen bool) Option {
	return func(p *Pipeline) { p.failOpen = failOpen }
}

// CheckInput returns the first blocking result, or a non-blocking one.
func (p *Pipeline) CheckInput(ctx context.Context, input string) CheckResult {
	for _, checker := range p.inputCheckers {
		if ctx.Err() != nil {
			if p.failOpen {
				return CheckResult{}
			}
			return CheckResult{Blocked: true, Reason: "safety check cancelled", CheckerID: "system"}
		}
		if res := checker.CheckInput(ctx, input); res.Blocked {
			res.CheckerID = checker.ID()
			return res
		}
	}
	return CheckResult{}
}

// FilterOutput runs every filter, each on the previous one's output.
func (p *Pipeline) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	for _, filter := range p.outputFilters {
		if ctx.Err() != nil {
			return result
		}
		res := filter.FilterOutput(ctx, result.Content)
		if res.Modified {
			result.Content = res.Content
			result.Modified = true
			result.Redactions = append(result.Redactions, res.Redactions...)
		}
	}
	return result
}

// IDs returns the identifiers of the input checkers, in order.
func (p *Pipeline) IDs() []string {
	ids := make([]string, 0, len(p.inputCheckers))
	for _, c := range p.inputCheckers {
		ids = append(ids, c.ID())
	}
	return ids
}

var _ Checker = (*Pipeline)(nil)
