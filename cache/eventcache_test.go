// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(pid uint32) Event {
	return Event{PID: pid}
}

func TestEventCacheNewestFirst(t *testing.T) {
	c := NewEventCache(8)
	c.Push(ev(1))
	c.Push(ev(2))
	c.Push(ev(3))

	require.Equal(t, 3, c.Len())
	for i, want := range []uint32{3, 2, 1} {
		got, ok := c.At(i)
		require.True(t, ok)
		assert.Equal(t, want, got.PID)
	}
}

func TestEventCacheEvictsOldest(t *testing.T) {
	c := NewEventCache(3)
	for pid := uint32(1); pid <= 4; pid++ {
		c.Push(ev(pid))
	}

	require.Equal(t, 3, c.Len())
	assert.Equal(t, []Event{ev(4), ev(3), ev(2)}, c.Snapshot())

	_, ok := c.At(3)
	assert.False(t, ok)
}

func TestEventCacheOutOfRange(t *testing.T) {
	c := NewEventCache(4)
	c.Push(ev(1))

	_, ok := c.At(-1)
	assert.False(t, ok)
	_, ok = c.At(1)
	assert.False(t, ok)
}

func TestEventCacheDiscard(t *testing.T) {
	c := NewEventCache(4)
	c.Push(ev(1))
	c.Discard()

	assert.Equal(t, 0, c.Len())
	_, ok := c.At(0)
	assert.False(t, ok)
	assert.Equal(t, 4, c.Capacity())
}

func TestEventCacheMinimumCapacity(t *testing.T) {
	c := NewEventCache(0)
	c.Push(ev(1))
	c.Push(ev(2))

	require.Equal(t, 1, c.Len())
	got, ok := c.At(0)
	require.True(t, ok)
	assert.Equal(t, uint32(2), got.PID)
}

// Exercises the writer/reader split under the race detector.
func TestEventCacheConcurrentAccess(t *testing.T) {
	c := NewEventCache(64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for pid := uint32(1); pid <= 1000; pid++ {
			c.Push(ev(pid))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if got, ok := c.At(i % 64); ok {
				assert.NotZero(t, got.PID)
			}
			_ = c.Snapshot()
		}
	}()
	wg.Wait()

	assert.Equal(t, 64, c.Len())
}
