// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller runs callbacks on a fixed interval, used for
// the host agent's refresh cycle.
package periodiccaller // import "github.com/tracekit/bpfmetrics/periodiccaller"

import (
	"context"
	"sync"
	"time"
)

// Start calls callback every interval until ctx is canceled. The
// returned function stops the ticker and blocks until any in-flight
// callback has returned, so callers can tear down the state the
// callback touches afterwards. It is safe to call more than once.
func Start(ctx context.Context, interval time.Duration, callback func()) func() {
	return run(ctx, interval, nil, func(bool) { callback() })
}

// StartWithManualTrigger behaves like Start but additionally invokes
// callback whenever the trigger channel fires, e.g. when the host
// agent forces a refresh outside the regular cycle.
func StartWithManualTrigger(ctx context.Context, interval time.Duration,
	trigger <-chan bool, callback func(manualTrigger bool)) func() {
	return run(ctx, interval, trigger, callback)
}

func run(ctx context.Context, interval time.Duration,
	trigger <-chan bool, callback func(manualTrigger bool)) func() {
	ticker := time.NewTicker(interval)
	stopped := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback(false)
			case <-trigger:
				callback(true)
			case <-ctx.Done():
				return
			case <-stopped:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopped) })
		<-done
	}
}
