// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"strings"
	"sync"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Loader produces an executor factory. It runs only when a deferred leaf
// naming it is dispatched for the first time, so expensive setup belongs here.
type Loader func() (Factory, error)

// Catalog maps deferred references to loaders: each location exposes a set
// of type names. It replaces import-by-name with an explicit table.
type Catalog struct {
	mu        sync.RWMutex
	locations map[string]map[string]Loader
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{locations: make(map[string]map[string]Loader)}
}

// Provide makes typeName available at location. Providing the same pair
// twice replaces the loader.
func (c *Catalog) Provide(location, typeName string, loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	types, ok := c.locations[location]
	if !ok {
		types = make(map[string]Loader)
		c.locations[location] = types
	}
	types[typeName] = loader
}

// ProvideFactory is Provide for factories that need no loading.
func (c *Catalog) ProvideFactory(location, typeName string, factory Factory) {
	c.Provide(location, typeName, func() (Factory, error) { return factory, nil })
}

// SplitReference splits "<location>.<TypeName>" at the last separator.
func SplitReference(ref string) (location, typeName string, err error) {
	i := strings.LastIndex(ref, Separator)
	if i <= 0 || i == len(ref)-1 {
		return "", "", errors.Newf(errors.CodeResolutionFailure,
			"malformed reference %q, want <location>.<TypeName>", ref)
	}
	return ref[:i], ref[i+1:], nil
}

// Resolve looks up ref and runs its loader.
func (c *Catalog) Resolve(ref string) (Factory, error) {
	location, typeName, err := SplitReference(ref)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	types, ok := c.locations[location]
	var loader Loader
	if ok {
		loader = types[typeName]
	}
	c.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.CodeResolutionFailure,
			"cannot resolve %q: unknown location %q", ref, location)
	}
	if loader == nil {
		return nil, errors.Newf(errors.CodeResolutionFailure,
			"cannot resolve %q: %q has no type %q", ref, location, typeName)
	}

	factory, err := loader()
	if err != nil {
		return nil, errors.New(errors.CodeResolutionFailure,
			"cannot resolve "+ref, err).WithContext("reference", ref)
	}
	if factory == nil {
		return nil, errors.Newf(errors.CodeResolutionFailure,
			"cannot resolve %q: loader returned no factory", ref)
	}
	return factory, nil
}
