// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements the NeuralChat command namespace: a tree of
// interior namespaces and invocable leaves, a catalog of deferred executor
// references, and the dispatcher that routes an argument vector to a leaf.
//
// The tree is an explicit value built once at startup:
//
//	tree, err := command.Build([]command.Registration{
//	    {Path: "help", Target: command.Bound(NewHelp), Description: "Show help."},
//	    {Path: "textchat", Target: command.Deferred("neuralchat.cli.textchat.TextChatExecutor")},
//	})
//	d := command.NewDispatcher(tree, catalog)
//	status, err := d.Execute(ctx, os.Args[1:])
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Separator splits registration paths into segments.
const Separator = "."

// Node is either an *Interior or a *Leaf.
type Node interface {
	// Description is the help text; empty nodes are hidden from help.
	Description() string
	node()
}

// Interior is a namespace of child nodes keyed by path segment.
type Interior struct {
	children    map[string]Node
	description string
}

func newInterior() *Interior {
	return &Interior{children: make(map[string]Node)}
}

func (*Interior) node() {}

func (n *Interior) Description() string { return n.description }

// Child returns the child registered under segment.
func (n *Interior) Child(segment string) (Node, bool) {
	child, ok := n.children[segment]
	return child, ok
}

// Names returns the child segments in lexical order.
func (n *Interior) Names() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree is the command namespace. It is read-mostly after Build; the only
// mutation after startup is leaf resolution, which the Leaf guards itself.
type Tree struct {
	root *Interior
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{root: newInterior()}
}

// Root returns the root namespace.
func (t *Tree) Root() *Interior { return t.root }

func splitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Newf(errors.CodeConfiguration, "empty command path")
	}
	segments := strings.Split(path, Separator)
	for _, s := range segments {
		if s == "" {
			return nil, errors.Newf(errors.CodeConfiguration, "command path %q has an empty segment", path)
		}
	}
	return segments, nil
}

// Register stores target under path, creating interior namespaces for every
// segment but the last. A path cannot be both a command and a namespace, and
// a path can only be registered once.
func (t *Tree) Register(path string, target Target, description string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if target.empty() {
		return errors.Newf(errors.CodeConfiguration, "command %q has no target", path)
	}

	current := t.root
	for i, segment := range segments[:len(segments)-1] {
		child, ok := current.children[segment]
		if !ok {
			next := newInterior()
			current.children[segment] = next
			current = next
			continue
		}
		next, ok := child.(*Interior)
		if !ok {
			return errors.Newf(errors.CodeConfiguration,
				"command %q is ambiguous: %q is already a command", path,
				strings.Join(segments[:i+1], Separator))
		}
		current = next
	}

	last := segments[len(segments)-1]
	switch existing := current.children[last].(type) {
	case nil:
	case *Interior:
		return errors.Newf(errors.CodeConfiguration,
			"command %q is ambiguous: it is already a namespace", path)
	case *Leaf:
		return errors.Newf(errors.CodeConfiguration,
			"command %q registered twice", path).WithContext("previous", existing.Description())
	}
	current.children[last] = &Leaf{target: target, description: description}
	return nil
}

// Describe sets the help text of the namespace at path.
func (t *Tree) Describe(path, description string) error {
	node, err := t.Lookup(path)
	if err != nil {
		return err
	}
	ns, ok := node.(*Interior)
	if !ok {
		return errors.Newf(errors.CodeConfiguration, "%q is a command, not a namespace", path)
	}
	ns.description = description
	return nil
}

// Lookup walks path segment by segment. Unlike dispatch it never falls back:
// an unknown segment is a CodeLookupFailure.
func (t *Tree) Lookup(path string) (Node, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var current Node = t.root
	for i, segment := range segments {
		ns, ok := current.(*Interior)
		if !ok {
			return nil, errors.Newf(errors.CodeLookupFailure,
				"%q is a command and has no subcommand %q",
				strings.Join(segments[:i], Separator), segment)
		}
		child, ok := ns.children[segment]
		if !ok {
			return nil, errors.New(errors.CodeLookupFailure,
				fmt.Sprintf("command path %q not found", path), nil).WithContext("segment", segment)
		}
		current = child
	}
	return current, nil
}

// LookupLeaf is Lookup restricted to invocable leaves.
func (t *Tree) LookupLeaf(path string) (*Leaf, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	leaf, ok := node.(*Leaf)
	if !ok {
		return nil, errors.Newf(errors.CodeLookupFailure, "%q is a namespace, not a command", path)
	}
	return leaf, nil
}

// Walk visits every leaf with its full path, in lexical order.
func (t *Tree) Walk(fn func(path string, leaf *Leaf) error) error {
	return walk(t.root, "", fn)
}

func walk(ns *Interior, prefix string, fn func(string, *Leaf) error) error {
	for _, name := range ns.Names() {
		path := name
		if prefix != "" {
			path = prefix + Separator + name
		}
		switch child := ns.children[name].(type) {
		case *Interior:
			if err := walk(child, path, fn); err != nil {
				return err
			}
		case *Leaf:
			if err := fn(path, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveAll eagerly resolves every deferred leaf. Long-lived servers call
// it at startup so dispatch never loads code.
func (t *Tree) ResolveAll(catalog *Catalog) error {
	return t.Walk(func(path string, leaf *Leaf) error {
		if _, err := leaf.Resolve(catalog); err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		return nil
	})
}

// Registration is one row of the startup command table.
type Registration struct {
	Path        string
	Target      Target
	Description string
}

// Build registers every entry into a new tree. The first error aborts.
func Build(entries []Registration) (*Tree, error) {
	t := NewTree()
	for _, e := range entries {
		if err := t.Register(e.Path, e.Target, e.Description); err != nil {
			return nil, err
		}
	}
	return t, nil
}
