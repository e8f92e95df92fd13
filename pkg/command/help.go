// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Entry is one line of a help listing.
type Entry struct {
	Name        string
	Description string
}

// ListChildren returns the immediate children of ns that carry a
// description, in lexical order.
func ListChildren(ns *Interior) []Entry {
	if ns == nil {
		return nil
	}
	var entries []Entry
	for _, name := range ns.Names() {
		desc := ns.children[name].Description()
		if desc == "" {
			continue
		}
		entries = append(entries, Entry{Name: name, Description: desc})
	}
	return entries
}

// WriteHelp renders the usage block for the namespace at path.
func WriteHelp(w io.Writer, program, path string, ns *Interior) {
	prefix := program
	if path != "" {
		prefix += " " + strings.ReplaceAll(path, Separator, " ")
	}
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "    %s <command> <options>\n\n", prefix)
	if ns != nil && ns.description != "" {
		fmt.Fprintf(w, "%s\n\n", ns.description)
	}
	fmt.Fprintln(w, "Commands:")
	for _, e := range ListChildren(ns) {
		fmt.Fprintf(w, "    %-15s        %s\n", e.Name, e.Description)
	}
}

// NewHelp returns the factory of the help command. It lists the namespace
// recorded by the dispatcher, or the namespace named by argv when invoked
// directly ("help config"), or the root.
func NewHelp(program string) Factory {
	return func(env Env) Executor {
		env = env.withDefaults()
		return ExecutorFunc(func(ctx context.Context, argv []string) bool {
			if path, ns, ok := NamespaceFromContext(ctx); ok {
				WriteHelp(env.Stdout, program, path, ns)
				return true
			}
			var (
				path string
				ns   *Interior
			)
			if env.Tree != nil {
				ns = env.Tree.Root()
				if len(argv) > 0 {
					p := strings.Join(argv, Separator)
					if node, err := env.Tree.Lookup(p); err == nil {
						if inner, ok := node.(*Interior); ok {
							path, ns = p, inner
						}
					}
				}
			}
			WriteHelp(env.Stdout, program, path, ns)
			return true
		})
	}
}
