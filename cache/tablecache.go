// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package cache // import "github.com/tracekit/bpfmetrics/cache"

import "sync/atomic"

// TableState is one immutable refresh result of a table-fed module:
// the key-to-counter mapping and the domain built from its keys.
type TableState struct {
	Values map[string]uint64
	Domain *InstanceDomain
}

// TableCache holds the state of counting and histogram modules. The
// synchronous refresh call replaces the state wholesale; readers always
// see a complete, consistent snapshot, so no lock is needed.
type TableCache struct {
	state atomic.Pointer[TableState]
}

// Replace installs a freshly built state.
func (c *TableCache) Replace(values map[string]uint64, names []string) *TableState {
	st := &TableState{
		Values: values,
		Domain: NewDomain(names),
	}
	c.state.Store(st)
	return st
}

// State returns the current state, or nil before the first refresh or
// after Discard.
func (c *TableCache) State() *TableState {
	return c.state.Load()
}

// Discard drops the state. Called on detach so later reads report
// unavailability instead of stale data.
func (c *TableCache) Discard() {
	c.state.Store(nil)
}
