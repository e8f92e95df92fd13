// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/neuralchat/pkg/errors"
	"github.com/jllopis/neuralchat/pkg/telemetry"
)

// DefaultHelpPath is the leaf used when argv does not reach a command.
const DefaultHelpPath = "help"

// Exit statuses returned by Execute.
const (
	StatusSuccess = 0
	StatusFailure = 1
)

// Dispatcher routes argument vectors to leaves of a Tree.
type Dispatcher struct {
	tree        *Tree
	catalog     *Catalog
	defaultPath string
	env         Env
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDefaultPath changes the fallback leaf (default "help").
func WithDefaultPath(path string) DispatcherOption {
	return func(d *Dispatcher) { d.defaultPath = path }
}

// WithOutput sets the streams handed to executors.
func WithOutput(stdout, stderr io.Writer) DispatcherOption {
	return func(d *Dispatcher) {
		d.env.Stdout = stdout
		d.env.Stderr = stderr
	}
}

// WithLogger sets the logger handed to executors.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.env.Logger = logger }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher binds a tree and the catalog for its deferred leaves.
func NewDispatcher(tree *Tree, catalog *Catalog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tree:        tree,
		catalog:     catalog,
		defaultPath: DefaultHelpPath,
		tracer:      otel.Tracer("neuralchat/command"),
		metrics:     telemetry.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.env.Tree = tree
	d.env = d.env.withDefaults()
	return d
}

// Route is the result of walking argv through the tree.
type Route struct {
	// Leaf is the command to run; the fallback leaf when Fallback is set.
	Leaf *Leaf
	// Path holds the consumed segments.
	Path []string
	// Namespace is the deepest interior node reached when Fallback is set.
	Namespace *Interior
	// Rest holds the unconsumed arguments passed to the executor.
	Rest     []string
	Fallback bool
}

// Route consumes the longest prefix of argv that names tree nodes, stopping
// at the first unknown token or at a leaf.
func (d *Dispatcher) Route(argv []string) (Route, error) {
	var (
		current Node = d.tree.root
		used    int
	)
	for used < len(argv) {
		ns, ok := current.(*Interior)
		if !ok {
			break
		}
		child, ok := ns.children[argv[used]]
		if !ok {
			break
		}
		current = child
		used++
	}

	r := Route{Path: argv[:used:used], Rest: argv[used:]}
	switch node := current.(type) {
	case *Leaf:
		r.Leaf = node
	case *Interior:
		leaf, err := d.tree.LookupLeaf(d.defaultPath)
		if err != nil {
			return Route{}, err
		}
		r.Leaf = leaf
		r.Namespace = node
		r.Fallback = true
	}
	return r, nil
}

// Execute dispatches argv and maps the executor's result to an exit status.
// Resolution failures are returned as errors. Panics raised by executors are
// not recovered: containing failures is each command's responsibility.
func (d *Dispatcher) Execute(ctx context.Context, argv []string) (int, error) {
	start := time.Now()
	route, err := d.Route(argv)
	if err != nil {
		return errors.AsChatError(err).ExitCode, err
	}

	path := strings.Join(route.Path, Separator)
	if route.Fallback {
		path = d.defaultPath
	}
	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		telemetry.CommandAttributes(path, route.Fallback, len(route.Rest))...,
	))
	defer span.End()

	deferred := route.Leaf.Target().IsDeferred()
	factory, err := route.Leaf.Resolve(d.catalog)
	if deferred {
		d.metrics.RecordResolution(ctx, route.Leaf.Target().Reference(), err == nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return errors.AsChatError(err).ExitCode, err
	}

	exec := factory(d.env)
	if exec == nil {
		err := errors.Newf(errors.CodeResolutionFailure, "command %q produced no executor", path)
		span.RecordError(err)
		return err.ExitCode, err
	}
	if route.Fallback {
		ctx = WithNamespace(ctx, strings.Join(route.Path, Separator), route.Namespace)
	}
	ctx = telemetry.ContextWithCommand(ctx, path)

	d.env.Logger.DebugContext(ctx, "dispatching command", "path", path, "args", len(route.Rest), "fallback", route.Fallback)

	status := StatusFailure
	if exec.Execute(ctx, route.Rest) {
		status = StatusSuccess
	} else {
		span.SetStatus(codes.Error, "command reported failure")
	}
	span.SetAttributes(attribute.Int(telemetry.AttrCommandStatus, status))
	d.metrics.RecordDispatch(ctx, path, status, route.Fallback, time.Since(start))
	return status, nil
}
