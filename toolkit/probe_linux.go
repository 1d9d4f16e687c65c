//go:build linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ProbeBPFSyscall checks if the eBPF syscall is available on the
// system before any module tries to activate.
func ProbeBPFSyscall() error {
	_, _, errNo := unix.Syscall(unix.SYS_BPF, uintptr(unix.BPF_PROG_TYPE_UNSPEC), uintptr(0), 0)
	if errNo == unix.ENOSYS {
		return errors.New("eBPF syscall is not available on your system")
	}
	return nil
}

// KernelVersion returns the major, minor and patch version of the
// running kernel from the utsname struct.
func KernelVersion() (major, minor, patch uint32, err error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return 0, 0, 0, fmt.Errorf("could not get kernel version: %v", err)
	}
	_, _ = fmt.Fscanf(bytes.NewReader(uname.Release[:]), "%d.%d.%d", &major, &minor, &patch)
	return major, minor, patch, nil
}
