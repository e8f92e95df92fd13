// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"
)

// Executor is the CLI contract of a leaf. Execute parses its own flags from
// argv, reports failures itself and returns false instead of propagating.
type Executor interface {
	Execute(ctx context.Context, argv []string) bool
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, argv []string) bool

func (f ExecutorFunc) Execute(ctx context.Context, argv []string) bool { return f(ctx, argv) }

// Env is what the dispatcher hands to a factory.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Tree   *Tree
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}

// Factory instantiates an executor for one dispatch.
type Factory func(env Env) Executor

type namespaceKey struct{}

type namespaceValue struct {
	path string
	ns   *Interior
}

// WithNamespace records the namespace reached by dispatch and its path
// ("" for the root).
func WithNamespace(ctx context.Context, path string, ns *Interior) context.Context {
	return context.WithValue(ctx, namespaceKey{}, namespaceValue{path: path, ns: ns})
}

// NamespaceFromContext returns the namespace reached by dispatch, if any.
func NamespaceFromContext(ctx context.Context) (string, *Interior, bool) {
	v, ok := ctx.Value(namespaceKey{}).(namespaceValue)
	if !ok || v.ns == nil {
		return "", nil, false
	}
	return v.path, v.ns, true
}

// NewFlagSet returns a flag set that reports parse errors to env.Stderr
// instead of exiting the process.
func NewFlagSet(env Env, name string) *pflag.FlagSet {
	env = env.withDefaults()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	return fs
}

// FlagResult converts a Parse error into the executor's return value:
// --help succeeded (usage was printed), anything else failed.
func FlagResult(err error) bool {
	return stderrors.Is(err, pflag.ErrHelp)
}

// Report runs a library entry point on behalf of Execute. A result is
// printed to stdout; an error becomes "<name> Exception: <err>" on stderr
// and a false return.
func Report(env Env, name string, fn func() (any, error)) bool {
	env = env.withDefaults()
	res, err := fn()
	if err != nil {
		env.Logger.Debug("command failed", "command", name, "error", err)
		fmt.Fprintf(env.Stderr, "%s Exception: %v\n", name, err)
		return false
	}
	if res != nil {
		fmt.Fprintln(env.Stdout, res)
	}
	return true
}
