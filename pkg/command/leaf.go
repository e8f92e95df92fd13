// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"sync"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Target is what a leaf runs: a bound factory, or a deferred reference of
// the form "<location>.<TypeName>" resolved through a Catalog on first use.
type Target struct {
	factory Factory
	ref     string
}

// Bound wraps an executor factory that is available at registration time.
func Bound(factory Factory) Target {
	return Target{factory: factory}
}

// Deferred records a reference to be resolved when the leaf is dispatched.
func Deferred(ref string) Target {
	return Target{ref: ref}
}

// IsDeferred reports whether the target still needs resolution.
func (t Target) IsDeferred() bool { return t.factory == nil && t.ref != "" }

// Reference returns the deferred reference, if any.
func (t Target) Reference() string { return t.ref }

func (t Target) empty() bool { return t.factory == nil && t.ref == "" }

// Leaf is an invocable command.
type Leaf struct {
	mu          sync.Mutex
	target      Target
	description string
	resolutions int
}

func (*Leaf) node() {}

func (l *Leaf) Description() string { return l.description }

// Target returns the current target. After a successful resolution it is a
// bound factory that still remembers the original reference.
func (l *Leaf) Target() Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

// Resolved reports whether the leaf has a bound factory.
func (l *Leaf) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target.factory != nil
}

// Resolutions counts how many times the catalog was consulted successfully
// for this leaf. It never exceeds one.
func (l *Leaf) Resolutions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolutions
}

// Resolve returns the leaf's factory, resolving a deferred reference through
// catalog at most once. Failures are not cached; the next call tries again.
func (l *Leaf) Resolve(catalog *Catalog) (Factory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.target.factory != nil {
		return l.target.factory, nil
	}
	if catalog == nil {
		return nil, errors.Newf(errors.CodeResolutionFailure,
			"cannot resolve %q: no catalog configured", l.target.ref)
	}
	factory, err := catalog.Resolve(l.target.ref)
	if err != nil {
		return nil, err
	}
	l.target.factory = factory
	l.resolutions++
	return factory, nil
}
