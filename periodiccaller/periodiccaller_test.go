// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package periodiccaller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	calls := 0
	stop := Start(ctx, 10*time.Millisecond, func() {
		calls++
		if calls == 3 {
			close(done)
		}
	})
	defer stop()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("callback was not invoked often enough")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ticks := make(chan struct{}, 64)
	stop := Start(ctx, 5*time.Millisecond, func() {
		ticks <- struct{}{}
	})
	defer stop()

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no tick before cancel")
	}
	cancel()

	// Allow in-flight callbacks to finish, then verify no more arrive.
	time.Sleep(20 * time.Millisecond)
	drained := len(ticks)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(ticks), drained+1)
}

// Callers tear down callback state right after stop() returns, so it
// must not return while a callback is still running.
func TestStopWaitsForInflightCallback(t *testing.T) {
	var running atomic.Bool
	entered := make(chan struct{}, 1)

	stop := Start(context.Background(), time.Millisecond, func() {
		running.Store(true)
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		running.Store(false)
	})

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	stop()
	assert.False(t, running.Load())

	// Idempotent.
	stop()
}

func TestStartWithManualTrigger(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	trigger := make(chan bool)
	manual := make(chan bool, 1)
	stop := StartWithManualTrigger(ctx, time.Hour, trigger,
		func(manualTrigger bool) {
			manual <- manualTrigger
		})
	defer stop()

	trigger <- true
	select {
	case v := <-manual:
		require.True(t, v)
	case <-ctx.Done():
		t.Fatal("manual trigger did not fire")
	}
}
