// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package module defines the four-operation lifecycle that every
// tracing metric collector exposes to the host agent, the per-module
// configuration spec, and the static registry that maps module
// identifiers to constructors.
package module // import "github.com/tracekit/bpfmetrics/module"

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/config"
)

// ErrInvalidConfig marks configuration errors that are fatal at
// construction; a module with an invalid spec never activates.
var ErrInvalidConfig = errors.New("invalid module configuration")

// Module is the lifecycle contract consumed by the host agent.
//
// Compile assembles, compiles and attaches the module's kernel
// program; a returned error is terminal, the module never retries and
// every later query reports unavailability. Refresh recomputes the
// instance domain from the current caches and returns its snapshot,
// or nil while the module is inactive. ReadValue resolves an instance
// handle issued by Refresh against the cache live at call time.
type Module interface {
	DeclareMetrics() (hasInstances bool, items []bridge.ItemDesc)
	Compile(ctx context.Context) error
	Refresh() []cache.Instance
	ReadValue(item bridge.ItemID, inst cache.Handle) (bridge.Value, bridge.Validity)

	// Close detaches the kernel program and discards all caches.
	Close()
}

// Spec carries the configuration shared by all modules. Capacity and
// page count are fixed once validated.
type Spec struct {
	Name            string
	CacheCapacity   int
	RingBufferPages int

	// Filter predicate sets; empty sets filter nothing.
	PIDs        []uint32
	LocalPorts  []uint32
	RemotePorts []uint32
}

// Validate rejects specs that must never activate.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing module name", ErrInvalidConfig)
	}
	if s.CacheCapacity < 1 {
		return fmt.Errorf("%w: module %s: cache capacity %d < 1",
			ErrInvalidConfig, s.Name, s.CacheCapacity)
	}
	if s.RingBufferPages < 1 || s.RingBufferPages&(s.RingBufferPages-1) != 0 {
		return fmt.Errorf("%w: module %s: ring buffer page count %d is not a power of two",
			ErrInvalidConfig, s.Name, s.RingBufferPages)
	}
	return nil
}

// SpecFromOptions reads the shared settings from a module's config
// section and validates them.
func SpecFromOptions(name string, opts config.Options) (Spec, error) {
	spec := Spec{Name: name}

	var err error
	if spec.CacheCapacity, err = config.Int(opts, "cache_size", 1024); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if spec.RingBufferPages, err = config.Int(opts, "buffer_pages", 64); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if spec.PIDs, err = config.Uint32List(opts, "process"); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if spec.LocalPorts, err = config.Uint32List(opts, "lport"); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if spec.RemotePorts, err = config.Uint32List(opts, "dport"); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err = spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// PIDResolver turns process names, regexes or pid strings into numeric
// ids. The implementation lives with the hosting environment; modules
// only consume the ids.
type PIDResolver interface {
	Resolve(pattern string) ([]uint32, error)
}
