// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package syscount counts system call invocations per syscall number.
// The kernel keeps a plain counting table; each refresh rebuilds the
// cache and instance domain wholesale from the current table content.
// The tracepoint context has no ambient pid, so the pid filter slot
// also injects the identifier declaration.
package syscount // import "github.com/tracekit/bpfmetrics/modules/syscount"

import (
	"context"
	_ "embed"
	"encoding/binary"
	"sort"
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/module"
	"github.com/tracekit/bpfmetrics/progtext"
	"github.com/tracekit/bpfmetrics/toolkit"
)

//go:embed bpf/template.c
var template string

const itemCalls bridge.ItemID = 1

var items = []bridge.ItemDesc{
	{ID: itemCalls, Name: "calls.count", Kind: bridge.KindInt},
}

type collector struct {
	spec  module.Spec
	tk    toolkit.Toolkit
	table cache.TableCache

	prog   toolkit.Program
	active atomic.Bool
}

// New constructs the syscount module from its config section.
func New(opts config.Options, tk toolkit.Toolkit) (module.Module, error) {
	spec, err := module.SpecFromOptions("syscount", opts)
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
			Subject: "pid",
			Decl:    "__u32 pid = bpf_get_current_pid_tgid() >> 32;",
			Values:  c.spec.PIDs,
		}).
		Render()
	if err != nil {
		return c.fail(err)
	}

	prog, err := toolkit.Load(ctx, c.tk, toolkit.LoadSpec{
		Text: text,
		Hooks: []toolkit.HookSpec{
			{Kind: toolkit.HookTracepoint, Target: "raw_syscalls:sys_enter",
				Program: "trace_sys_enter"},
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

// Refresh rebuilds the per-syscall counters. Instances are syscall
// numbers, sorted numerically so identity stays stable as the live
// set grows.
func (c *collector) Refresh() []cache.Instance {
	if !c.active.Load() {
		return nil
	}

	table, err := c.prog.Table("counts")
	if err != nil {
		log.Errorf("Module %s: table lookup failed: %v", c.spec.Name, err)
		return nil
	}

	nrs := make([]uint32, 0, 64)
	values := make(map[string]uint64)
	err = table.ForEach(func(key, value []byte) bool {
		nr := binary.LittleEndian.Uint32(key)
		nrs = append(nrs, nr)
		values[strconv.FormatUint(uint64(nr), 10)] = binary.LittleEndian.Uint64(value)
		return true
	})
	if err != nil {
		log.Errorf("Module %s: table read failed: %v", c.spec.Name, err)
		return nil
	}

	sort.Slice(nrs, func(i, j int) bool { return nrs[i] < nrs[j] })
	names := make([]string, len(nrs))
	for i, nr := range nrs {
		names[i] = strconv.FormatUint(uint64(nr), 10)
	}

	st := c.table.Replace(values, names)
	metrics.Add(metrics.IDRefreshes, 1)
	return st.Domain.Instances()
}

func (c *collector) ReadValue(item bridge.ItemID, inst cache.Handle) (bridge.Value, bridge.Validity) {
	st := c.table.State()
	if !c.active.Load() || st == nil || item != itemCalls {
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
