// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package cache // import "github.com/tracekit/bpfmetrics/cache"

import (
	"github.com/tracekit/bpfmetrics/xsync"
)

// eventRing is a fixed-capacity ring with index 0 logically at the
// newest entry.
type eventRing struct {
	events []Event
	head   int
	size   int
}

// EventCache is a capacity-bounded, newest-first sequence of Events.
// Pushing past capacity evicts the oldest entry. One background
// ingestor writes, one foreground bridge reads; the lock is held only
// for the individual mutation or copy.
type EventCache struct {
	capacity int
	ring     xsync.RWMutex[eventRing]
}

// NewEventCache returns a cache bounded to the given capacity.
// Capacity is fixed for the cache's lifetime.
func NewEventCache(capacity int) *EventCache {
	if capacity < 1 {
		capacity = 1
	}
	return &EventCache{
		capacity: capacity,
		ring: xsync.NewRWMutex(eventRing{
			events: make([]Event, capacity),
		}),
	}
}

// Capacity returns the configured bound.
func (c *EventCache) Capacity() int {
	return c.capacity
}

// Push inserts ev at the front, evicting the oldest entry once the
// cache is full.
func (c *EventCache) Push(ev Event) {
	ring := c.ring.WLock()
	defer c.ring.WUnlock(&ring)

	ring.head = (ring.head - 1 + c.capacity) % c.capacity
	ring.events[ring.head] = ev
	if ring.size < c.capacity {
		ring.size++
	}
}

// Len returns the number of cached events.
func (c *EventCache) Len() int {
	ring := c.ring.RLock()
	defer c.ring.RUnlock(&ring)
	return ring.size
}

// At returns the event at newest-first position i. The second return
// is false when i is out of range, e.g. because the entry has been
// evicted between refresh and read.
func (c *EventCache) At(i int) (Event, bool) {
	ring := c.ring.RLock()
	defer c.ring.RUnlock(&ring)

	if i < 0 || i >= ring.size {
		return Event{}, false
	}
	return ring.events[(ring.head+i)%c.capacity], true
}

// Snapshot copies out all cached events, newest first.
func (c *EventCache) Snapshot() []Event {
	ring := c.ring.RLock()
	defer c.ring.RUnlock(&ring)

	out := make([]Event, ring.size)
	for i := 0; i < ring.size; i++ {
		out[i] = ring.events[(ring.head+i)%c.capacity]
	}
	return out
}

// Discard drops all cached events. Called on detach so later reads
// report unavailability instead of stale data.
func (c *EventCache) Discard() {
	ring := c.ring.WLock()
	defer c.ring.WUnlock(&ring)
	ring.head = 0
	ring.size = 0
}
