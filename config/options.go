// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the named-option lookup that modules read
// their per-section settings through. Parsing configuration files and
// command lines into these options is the hosting environment's job.
package config // import "github.com/tracekit/bpfmetrics/config"

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is one module section's named-option lookup.
type Options interface {
	Lookup(name string) (string, bool)
}

// MapOptions is the trivial Options implementation over a map.
type MapOptions map[string]string

func (m MapOptions) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Int reads an integer option, falling back to def when unset.
func Int(o Options, name string, def int) (int, error) {
	raw, ok := o.Lookup(name)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("option %s: invalid integer %q", name, raw)
	}
	return v, nil
}

// String reads a string option, falling back to def when unset.
func String(o Options, name, def string) string {
	raw, ok := o.Lookup(name)
	if !ok {
		return def
	}
	return strings.TrimSpace(raw)
}

// Uint32List reads a comma-separated list of unsigned values, e.g.
// port or pid filter sets. An unset option yields an empty list, which
// filters nothing.
func Uint32List(o Options, name string) ([]uint32, error) {
	raw, ok := o.Lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	values := make([]uint32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("option %s: invalid value %q", name, part)
		}
		values = append(values, uint32(v))
	}
	return values, nil
}
