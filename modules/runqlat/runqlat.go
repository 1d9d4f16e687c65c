// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package runqlat collects per-CPU log2 histograms of run queue
// latency. The scheduler's context switch function is not a stable
// symbol across kernel builds, so attach points are discovered at
// activation time and one probe fragment is rendered per match. The
// instance domain is the numeric-sorted union of bucket keys across
// all CPU sections; values sum the sections per bucket.
package runqlat // import "github.com/tracekit/bpfmetrics/modules/runqlat"

import (
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/histogram"
	"github.com/tracekit/bpfmetrics/hooks"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/module"
	"github.com/tracekit/bpfmetrics/progtext"
	"github.com/tracekit/bpfmetrics/toolkit"
)

//go:embed bpf/template.c
var template string

// switchPattern matches the scheduler symbol across kernel builds,
// including compiler-suffixed variants like finish_task_switch.isra.0.
// The "pattern" option overrides it for kernels with renamed symbols.
const switchPattern = `finish_task_switch(\.isra\.\d+)?`

const switchFragment = `SEC("kprobe/__FN__")
int BPF_KPROBE(trace_switch___IDX__, struct task_struct *prev)
{
	return handle_switch(prev);
}`

const itemLatency bridge.ItemID = 1

var items = []bridge.ItemDesc{
	{ID: itemLatency, Name: "latency.us", Kind: bridge.KindInt},
}

type collector struct {
	spec     module.Spec
	tk       toolkit.Toolkit
	pattern  string
	discover func(pattern string) ([]string, error)
	table    cache.TableCache

	prog   toolkit.Program
	active atomic.Bool
}

// New constructs the runqlat module from its config section.
func New(opts config.Options, tk toolkit.Toolkit) (module.Module, error) {
	spec, err := module.SpecFromOptions("runqlat", opts)
	if err != nil {
		return nil, err
	}
	discovery, err := hooks.NewDiscovery()
	if err != nil {
		return nil, err
	}
	return &collector{
		spec:     spec,
		tk:       tk,
		pattern:  config.String(opts, "pattern", switchPattern),
		discover: discovery.Matching,
	}, nil
}

func (c *collector) DeclareMetrics() (bool, []bridge.ItemDesc) {
	return true, items
}

func (c *collector) Compile(ctx context.Context) error {
	symbols, err := c.discover(c.pattern)
	if err != nil {
		return c.fail(err)
	}

	bindings := make([]progtext.Binding, len(symbols))
	hookSpecs := make([]toolkit.HookSpec, len(symbols)+1)
	hookSpecs[0] = toolkit.HookSpec{
		Kind:    toolkit.HookTracepoint,
		Target:  "sched:sched_wakeup",
		Program: "trace_wakeup",
	}
	for i, symbol := range symbols {
		bindings[i] = progtext.Binding{"FN": symbol, "IDX": strconv.Itoa(i)}
		hookSpecs[i+1] = toolkit.HookSpec{
			Kind:    toolkit.HookKprobe,
			Target:  symbol,
			Program: fmt.Sprintf("trace_switch_%d", i),
		}
	}

	text, err := progtext.NewBuilder(template).
		Filter("pid", progtext.FilterSpec{
			Subject: "pid", Values: c.spec.PIDs}).
		Probe("switch", "", switchFragment, bindings).
		Render()
	if err != nil {
		// Includes the zero-attach-points case, which is fatal.
		return c.fail(err)
	}

	prog, err := toolkit.Load(ctx, c.tk, toolkit.LoadSpec{
		Text:  text,
		Hooks: hookSpecs,
	})
	if err != nil {
		return c.fail(err)
	}

	c.prog = prog
	c.active.Store(true)
	log.Infof("Module %s attached to %d scheduler symbols", c.spec.Name, len(symbols))
	return nil
}

func (c *collector) fail(err error) error {
	c.active.Store(false)
	metrics.Add(metrics.IDActivationFailures, 1)
	log.Errorf("Module %s disabled: %v", c.spec.Name, err)
	return err
}

// Refresh reads the two-level (cpu, slot) table, decodes each CPU's
// row independently and publishes the union domain.
func (c *collector) Refresh() []cache.Instance {
	if !c.active.Load() {
		return nil
	}

	table, err := c.prog.Table("dist")
	if err != nil {
		log.Errorf("Module %s: table lookup failed: %v", c.spec.Name, err)
		return nil
	}

	sections := make(map[uint32][]uint64)
	err = table.ForEach(func(key, value []byte) bool {
		cpu := binary.LittleEndian.Uint32(key[0:4])
		slot := binary.LittleEndian.Uint32(key[4:8])
		row, ok := sections[cpu]
		if !ok {
			row = make([]uint64, histogram.Slots)
			sections[cpu] = row
		}
		if int(slot) < len(row) {
			row[slot] = binary.LittleEndian.Uint64(value)
		}
		return true
	})
	if err != nil {
		log.Errorf("Module %s: table read failed: %v", c.spec.Name, err)
		return nil
	}

	if len(sections) == 0 {
		// Keep the domain non-empty before the first sample arrives.
		sections[0] = make([]uint64, histogram.Slots)
	}

	values := make(map[string]uint64)
	for _, row := range sections {
		histogram.Merge(values, histogram.DecodeRow(row))
	}
	names := histogram.UnionKeys(sections)

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
