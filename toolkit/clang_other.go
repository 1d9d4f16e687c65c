//go:build !linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"context"
	"fmt"
	"runtime"
)

// Config parameterizes the clang-backed toolkit.
type Config struct {
	ClangPath        string
	CFlags           []string
	VerifierLogLevel uint32
}

// New keeps the package compiling on non-linux systems; the returned
// toolkit always fails at runtime if used.
func New(Config) Toolkit {
	return unsupportedToolkit{}
}

type unsupportedToolkit struct{}

func (unsupportedToolkit) Compile(context.Context, string) (Program, error) {
	return nil, fmt.Errorf("unsupported os %s", runtime.GOOS)
}
