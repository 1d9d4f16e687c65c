//go:build !linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"fmt"
	"runtime"
)

// ProbeBPFSyscall always fails on non-linux systems.
func ProbeBPFSyscall() error {
	return fmt.Errorf("unsupported os %s", runtime.GOOS)
}

// KernelVersion always fails on non-linux systems.
func KernelVersion() (major, minor, patch uint32, err error) {
	return 0, 0, 0, fmt.Errorf("unsupported os %s", runtime.GOOS)
}
