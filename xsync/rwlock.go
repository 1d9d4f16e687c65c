// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides typed synchronization primitives.
package xsync // import "github.com/tracekit/bpfmetrics/xsync"

import "sync"

// RWMutex wraps sync.RWMutex and hides the data it protects, so the
// guarded value cannot be reached without going through Lock/RLock.
// Callers must not let the returned pointer escape the scope in which
// the lock is held; the unlock functions nil it out to make accidental
// reuse crash loudly in tests.
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex returns an RWMutex guarding the given value.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{guarded: guarded}
}

// RLock locks for reading and returns a pointer to the guarded data.
// The pointed-to data must not be written.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock releases a read lock. Pass a reference to the pointer
// obtained from RLock so it can be invalidated.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks for writing and returns a pointer to the guarded data.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock releases a write lock. Pass a reference to the pointer
// obtained from WLock so it can be invalidated.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
