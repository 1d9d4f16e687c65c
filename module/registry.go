// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package module // import "github.com/tracekit/bpfmetrics/module"

import (
	"fmt"
	"sort"

	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/toolkit"
)

// Constructor builds one module from its config section.
type Constructor func(opts config.Options, tk toolkit.Toolkit) (Module, error)

// registry maps module identifiers to constructors. It is populated
// at initialization, never by runtime name lookup.
var registry = map[string]Constructor{}

// Register adds a module constructor. Duplicate identifiers are a
// programming error.
func Register(name string, c Constructor) {
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("module %q registered twice", name))
	}
	registry[name] = c
}

// New instantiates the named module.
func New(name string, opts config.Options, tk toolkit.Toolkit) (Module, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown module %q", name)
	}
	return c(opts, tk)
}

// Names lists all registered module identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
