// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolkit abstracts the external tracing toolkit: compiling
// program text, attaching the result to kernel hook points, and
// binding its ring buffers and tables. The production implementation
// compiles with clang and loads through cilium/ebpf; the interface is
// narrow enough for tests to substitute a fake.
package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"context"
	"fmt"
)

// HookKind enumerates the supported attachment mechanisms.
type HookKind uint8

const (
	HookKprobe HookKind = iota + 1
	HookKretprobe
	HookTracepoint
)

// HookSpec names one kernel attachment: which compiled program to
// attach and where. Target is a kernel symbol for kprobes and a
// "category:name" pair for tracepoints.
type HookSpec struct {
	Kind    HookKind
	Target  string
	Program string
}

func (h HookSpec) String() string {
	kind := "kprobe"
	switch h.Kind {
	case HookKretprobe:
		kind = "kretprobe"
	case HookTracepoint:
		kind = "tracepoint"
	}
	return fmt.Sprintf("%s:%s", kind, h.Target)
}

// Toolkit compiles program text into a loadable unit.
type Toolkit interface {
	// Compile builds the text and loads the result into the kernel.
	// The returned Program holds kernel resources until Detach.
	Compile(ctx context.Context, text string) (Program, error)
}

// Table provides iteration over one named kernel table.
type Table interface {
	// ForEach visits every entry. Returning false from fn stops the
	// iteration early.
	ForEach(fn func(key, value []byte) bool) error
}

// Program is one compiled and loaded unit.
type Program interface {
	// Attach wires one program section to its hook point.
	Attach(hook HookSpec) error

	// OpenRingBuffer binds the named ring buffer with the given page
	// count per CPU. onEvent receives each raw record; onLost receives
	// overrun counts and is required.
	OpenRingBuffer(name string, pages int, onEvent func([]byte), onLost func(uint64)) error

	// Poll blocks draining all bound ring buffers, dispatching the
	// registered callbacks. It returns nil once the program is
	// detached, which unblocks any in-flight read.
	Poll(ctx context.Context) error

	// Table opens the named kernel table for iteration.
	Table(name string) (Table, error)

	// Detach releases every kernel resource the program holds. It is
	// idempotent.
	Detach() error
}
