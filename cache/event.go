// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache holds the process-local stores that tracing modules
// fill and the metric bridge reads: a bounded newest-first event cache
// for ring-buffer-fed modules, an atomically replaced table cache for
// counting and histogram modules, and the instance domain that maps
// stable instance names to opaque handles.
package cache // import "github.com/tracekit/bpfmetrics/cache"

import (
	"net/netip"
	"time"
)

// Event is the normalized record produced by ring-buffer-fed modules.
// The v4 and v6 wire variants differ only in address width; both decode
// into this one shape.
type Event struct {
	PID     uint32
	Comm    string
	SAddr   netip.Addr
	DAddr   netip.Addr
	LPort   uint16
	DPort   uint16
	TXBytes uint64
	RXBytes uint64
	Span    time.Duration
}
