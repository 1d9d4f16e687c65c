// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge answers the host agent's instance-listing and
// value-lookup queries from module caches. Lookups that cannot be
// served, because the module is inactive or the addressed entry has
// expired from its cache, resolve to a defined "temporarily
// unavailable" result; callers retry on the next cycle instead of
// treating it as fatal.
package bridge // import "github.com/tracekit/bpfmetrics/bridge"

import (
	"sync/atomic"

	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/metrics"
)

// ItemID identifies one item (metric column) of a module.
type ItemID uint32

// ValueKind tags the payload type of a Value.
type ValueKind uint8

const (
	KindInt ValueKind = iota + 1
	KindString
)

// ItemDesc describes one queryable item of a module.
type ItemDesc struct {
	ID   ItemID
	Name string
	Kind ValueKind
}

// Value is one query result.
type Value struct {
	Kind ValueKind
	Int  int64
	Str  string
}

// IntValue wraps an integer result.
func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

// StringValue wraps a string result.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Validity reports whether a Value could be served.
type Validity uint8

const (
	// ValueOK means the value is current and usable.
	ValueOK Validity = iota
	// ValueUnavailable means the value could not be served right now.
	// The caller may retry after the next refresh.
	ValueUnavailable
)

// Unavailable is the sentinel result for lookups that cannot be
// served. It also counts the occurrence.
func Unavailable() (Value, Validity) {
	metrics.Add(metrics.IDUnavailableReads, 1)
	return Value{}, ValueUnavailable
}

// Bridge publishes one module's instance domain to the query path.
// The domain is immutable once published, so queries only pay for the
// pointer load plus the snapshot copy.
type Bridge struct {
	domain atomic.Pointer[cache.InstanceDomain]
}

// SetDomain publishes the domain computed by the latest refresh.
func (b *Bridge) SetDomain(d *cache.InstanceDomain) {
	b.domain.Store(d)
}

// Clear withdraws the domain, e.g. on detach.
func (b *Bridge) Clear() {
	b.domain.Store(nil)
}

// Instances returns a snapshot of the current instance domain, or nil
// if none has been published.
func (b *Bridge) Instances() []cache.Instance {
	d := b.domain.Load()
	if d == nil {
		return nil
	}
	return d.Instances()
}

// Lookup resolves an instance handle against the published domain.
func (b *Bridge) Lookup(h cache.Handle) (string, bool) {
	d := b.domain.Load()
	if d == nil {
		return "", false
	}
	return d.Lookup(h)
}
