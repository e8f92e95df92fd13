// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	stderrors "errors"
	"testing"

	"github.com/jllopis/neuralchat/pkg/errors"
)

func TestSplitReference(t *testing.T) {
	tests := []struct {
		ref          string
		wantLocation string
		wantType     string
		wantErr      bool
	}{
		{ref: "neuralchat.cli.textchat.TextChatExecutor", wantLocation: "neuralchat.cli.textchat", wantType: "TextChatExecutor"},
		{ref: "pkg.Type", wantLocation: "pkg", wantType: "Type"},
		{ref: "NoSeparator", wantErr: true},
		{ref: ".Type", wantErr: true},
		{ref: "pkg.", wantErr: true},
		{ref: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			loc, typ, err := SplitReference(tt.ref)
			if tt.wantErr {
				if !errors.HasCode(err, errors.CodeResolutionFailure) {
					t.Fatalf("SplitReference(%q) error = %v, want resolution failure", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitReference(%q): %v", tt.ref, err)
			}
			if loc != tt.wantLocation || typ != tt.wantType {
				t.Errorf("got (%q, %q), want (%q, %q)", loc, typ, tt.wantLocation, tt.wantType)
			}
		})
	}
}

func TestCatalogResolve(t *testing.T) {
	loadErr := stderrors.New("model weights missing")

	catalog := NewCatalog()
	catalog.ProvideFactory("neuralchat.cli", "Help", noop)
	catalog.Provide("neuralchat.cli", "Broken", func() (Factory, error) { return nil, loadErr })
	catalog.Provide("neuralchat.cli", "Empty", func() (Factory, error) { return nil, nil })

	if f, err := catalog.Resolve("neuralchat.cli.Help"); err != nil || f == nil {
		t.Fatalf("Resolve(Help) = %v, %v", f, err)
	}

	tests := []string{
		"neuralchat.other.Help",
		"neuralchat.cli.Missing",
		"neuralchat.cli.Broken",
		"neuralchat.cli.Empty",
	}
	for _, ref := range tests {
		if _, err := catalog.Resolve(ref); !errors.HasCode(err, errors.CodeResolutionFailure) {
			t.Errorf("Resolve(%q) = %v, want resolution failure", ref, err)
		}
	}

	_, err := catalog.Resolve("neuralchat.cli.Broken")
	if !stderrors.Is(err, loadErr) {
		t.Errorf("loader error not wrapped: %v", err)
	}
}

func TestLeafResolve_NilCatalog(t *testing.T) {
	leaf := &Leaf{target: Deferred("a.B")}
	if _, err := leaf.Resolve(nil); !errors.HasCode(err, errors.CodeResolutionFailure) {
		t.Fatalf("Resolve(nil) = %v", err)
	}
	if leaf.Resolved() {
		t.Error("leaf resolved without a catalog")
	}
}

func TestLeafResolve_FailureNotCached(t *testing.T) {
	catalog := NewCatalog()
	leaf := &Leaf{target: Deferred("late.Type")}

	if _, err := leaf.Resolve(catalog); err == nil {
		t.Fatal("expected failure before the type is provided")
	}
	catalog.ProvideFactory("late", "Type", noop)
	if _, err := leaf.Resolve(catalog); err != nil {
		t.Fatalf("Resolve after Provide: %v", err)
	}
	if leaf.Resolutions() != 1 {
		t.Errorf("resolutions = %d, want 1", leaf.Resolutions())
	}
	if leaf.Target().Reference() != "late.Type" || leaf.Target().IsDeferred() {
		t.Errorf("target after resolution = %+v", leaf.Target())
	}
}
