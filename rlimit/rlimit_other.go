//go:build !linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package rlimit // import "github.com/tracekit/bpfmetrics/rlimit"

import (
	"fmt"
	"runtime"
)

// MaximizeMemlock keeps the package compiling on non-linux systems and
// always fails at runtime if used.
func MaximizeMemlock() (func(), error) {
	return nil, fmt.Errorf("unsupported os %s", runtime.GOOS)
}
