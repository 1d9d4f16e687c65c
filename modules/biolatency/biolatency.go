// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package biolatency collects a log2 histogram of block I/O latency.
// The kernel keeps the distribution in a flat 64-slot table; each
// refresh reads the table synchronously, reconstructs labeled bucket
// ranges and replaces the module's cache wholesale. No ring buffer and
// no background task are involved.
package biolatency // import "github.com/tracekit/bpfmetrics/modules/biolatency"

import (
	"context"
	_ "embed"
	"encoding/binary"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/histogram"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/module"
	"github.com/tracekit/bpfmetrics/progtext"
	"github.com/tracekit/bpfmetrics/toolkit"
)

//go:embed bpf/template.c
var template string

const itemLatency bridge.ItemID = 1

var items = []bridge.ItemDesc{
	{ID: itemLatency, Name: "latency.us", Kind: bridge.KindInt},
}

type collector struct {
	spec  module.Spec
	tk    toolkit.Toolkit
	table cache.TableCache

	prog   toolkit.Program
	active atomic.Bool
}

// New constructs the biolatency module from its config section.
func New(opts config.Options, tk toolkit.Toolkit) (module.Module, error) {
	spec, err := module.SpecFromOptions("biolatency", opts)
	if err != nil {
		return nil, err
	}
	return &collector{spec: spec, tk: tk}, nil
}

func (c *collector) DeclareMetrics() (bool, []bridge.ItemDesc) {
	return true, items
}

func (c *collector) Compile(ctx context.Context) error {
	text, err := progtext.NewBuilder(template).
		Filter("pid", progtext.FilterSpec{
			Subject: "pid", Values: c.spec.PIDs}).
		Render()
	if err != nil {
		return c.fail(err)
	}

	prog, err := toolkit.Load(ctx, c.tk, toolkit.LoadSpec{
		Text: text,
		Hooks: []toolkit.HookSpec{
			{Kind: toolkit.HookKprobe, Target: "blk_account_io_start", Program: "trace_io_start"},
			{Kind: toolkit.HookKprobe, Target: "blk_account_io_done", Program: "trace_io_done"},
		},
	})
	if err != nil {
		return c.fail(err)
	}

	c.prog = prog
	c.active.Store(true)
	log.Infof("Module %s attached", c.spec.Name)
	return nil
}

func (c *collector) fail(err error) error {
	c.active.Store(false)
	metrics.Add(metrics.IDActivationFailures, 1)
	log.Errorf("Module %s disabled: %v", c.spec.Name, err)
	return err
}

// Refresh reads the kernel table and rebuilds the bucket cache and
// instance domain from scratch.
func (c *collector) Refresh() []cache.Instance {
	if !c.active.Load() {
		return nil
	}

	table, err := c.prog.Table("dist")
	if err != nil {
		log.Errorf("Module %s: table lookup failed: %v", c.spec.Name, err)
		return nil
	}

	counts := make([]uint64, histogram.Slots)
	err = table.ForEach(func(key, value []byte) bool {
		slot := binary.LittleEndian.Uint32(key)
		if int(slot) < len(counts) {
			counts[slot] = binary.LittleEndian.Uint64(value)
		}
		return true
	})
	if err != nil {
		log.Errorf("Module %s: table read failed: %v", c.spec.Name, err)
		return nil
	}

	buckets := histogram.DecodeRow(counts)
	values := make(map[string]uint64, len(buckets))
	histogram.Merge(values, buckets)
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.Key()
	}

	st := c.table.Replace(values, names)
	metrics.Add(metrics.IDRefreshes, 1)
	return st.Domain.Instances()
}

func (c *collector) ReadValue(item bridge.ItemID, inst cache.Handle) (bridge.Value, bridge.Validity) {
	st := c.table.State()
	if !c.active.Load() || st == nil || item != itemLatency {
		return bridge.Unavailable()
	}
	name, ok := st.Domain.Lookup(inst)
	if !ok {
		return bridge.Unavailable()
	}
	return bridge.IntValue(int64(st.Values[name])), bridge.ValueOK
}

func (c *collector) Close() {
	if !c.active.Swap(false) {
		return
	}
	if c.prog != nil {
		_ = c.prog.Detach()
		c.prog = nil
	}
	c.table.Discard()
}
