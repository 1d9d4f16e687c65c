// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest drains a module's ring buffers into its bounded
// event cache. One background goroutine per ring-buffer-fed module
// blocks in the toolkit's poll; records are decoded outside any lock
// and pushed under the cache's short-held write lock. Ring buffer
// overruns are counted and logged but never fatal.
package ingest // import "github.com/tracekit/bpfmetrics/ingest"

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/toolkit"
)

// Decoder turns one raw ring buffer record into a normalized Event.
type Decoder func(raw []byte) (cache.Event, error)

// Ingestor feeds one module's event cache.
type Ingestor struct {
	module string
	cache  *cache.EventCache

	ingested     atomic.Uint64
	lost         atomic.Uint64
	decodeErrors atomic.Uint64
}

// New returns an Ingestor for the named module writing into c.
func New(module string, c *cache.EventCache) *Ingestor {
	return &Ingestor{module: module, cache: c}
}

// RingBuffer builds the binding for one named ring buffer. The decode
// callback runs on the poll goroutine, outside the cache lock; only
// the resulting push takes it.
func (ig *Ingestor) RingBuffer(name string, pages int, decode Decoder) toolkit.RingBufferSpec {
	return toolkit.RingBufferSpec{
		Name:  name,
		Pages: pages,
		OnEvent: func(raw []byte) {
			ev, err := decode(raw)
			if err != nil {
				ig.decodeErrors.Add(1)
				log.Debugf("Module %s: dropping undecodable record from %s: %v",
					ig.module, name, err)
				return
			}
			ig.cache.Push(ev)
			ig.ingested.Add(1)
		},
		OnLost: func(n uint64) {
			ig.lost.Add(n)
			log.Warnf("Module %s: ring buffer %s overrun, %d events lost",
				ig.module, name, n)
		},
	}
}

// Start runs the poll loop in the background. The loop exits once the
// program is detached; a failure inside it terminates only this
// module's task, never the process.
func (ig *Ingestor) Start(ctx context.Context, prog toolkit.Program) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Module %s: ingest task failed: %v", ig.module, r)
			}
		}()

		if err := prog.Poll(ctx); err != nil {
			log.Errorf("Module %s: ring buffer poll failed: %v", ig.module, err)
			return
		}
		log.Debugf("Module %s: ingest task stopped", ig.module)
	}()
}

// Metrics drains the ingest counters for reporting. Intended to be
// called once per refresh cycle.
func (ig *Ingestor) Metrics() []metrics.Metric {
	return []metrics.Metric{
		{ID: metrics.IDEventsIngested, Value: metrics.MetricValue(ig.ingested.Swap(0))},
		{ID: metrics.IDEventsLost, Value: metrics.MetricValue(ig.lost.Swap(0))},
		{ID: metrics.IDDecodeErrors, Value: metrics.MetricValue(ig.decodeErrors.Swap(0))},
	}
}
