//go:build linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package rlimit adjusts resource limits needed for loading kernel
// programs and maps.
package rlimit // import "github.com/tracekit/bpfmetrics/rlimit"

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// MaximizeMemlock raises the memlock limit to RLIM_INFINITY so map and
// program creation is not rejected on kernels that still account
// locked memory. The returned function restores the previous limit.
func MaximizeMemlock() (func(), error) {
	var oldLimit unix.Rlimit
	infinity := unix.Rlimit{
		Cur: unix.RLIM_INFINITY,
		Max: unix.RLIM_INFINITY,
	}

	if err := unix.Prlimit(0, unix.RLIMIT_MEMLOCK, &infinity, &oldLimit); err != nil {
		return nil, fmt.Errorf("failed to raise memlock limit: %w", err)
	}

	return func() {
		if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &oldLimit); err != nil {
			log.Fatalf("Failed to restore memlock limit: %v", err)
		}
	}, nil
}
