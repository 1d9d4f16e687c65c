// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package tcplife collects per-session TCP lifetime metrics. The
// kernel program reports one event per closed session through a v4 or
// v6 ring buffer; sessions are cached newest-first and exposed with
// one instance per cached session.
package tcplife // import "github.com/tracekit/bpfmetrics/modules/tcplife"

import (
	"context"
	_ "embed"
	"strconv"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/cache"
	"github.com/tracekit/bpfmetrics/compat"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/ingest"
	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/module"
	"github.com/tracekit/bpfmetrics/progtext"
	"github.com/tracekit/bpfmetrics/toolkit"
)

//go:embed bpf/template.c
var template string

const (
	itemPID bridge.ItemID = iota + 1
	itemComm
	itemLAddr
	itemLPort
	itemRAddr
	itemRPort
	itemTX
	itemRX
	itemDuration
)

var items = []bridge.ItemDesc{
	{ID: itemPID, Name: "proc.pid", Kind: bridge.KindInt},
	{ID: itemComm, Name: "proc.comm", Kind: bridge.KindString},
	{ID: itemLAddr, Name: "conn.laddr", Kind: bridge.KindString},
	{ID: itemLPort, Name: "conn.lport", Kind: bridge.KindInt},
	{ID: itemRAddr, Name: "conn.raddr", Kind: bridge.KindString},
	{ID: itemRPort, Name: "conn.rport", Kind: bridge.KindInt},
	{ID: itemTX, Name: "io.tx_bytes", Kind: bridge.KindInt},
	{ID: itemRX, Name: "io.rx_bytes", Kind: bridge.KindInt},
	{ID: itemDuration, Name: "session.duration_us", Kind: bridge.KindInt},
}

type collector struct {
	spec     module.Spec
	tk       toolkit.Toolkit
	events   *cache.EventCache
	ingestor *ingest.Ingestor
	bridge   bridge.Bridge

	prog   toolkit.Program
	cancel context.CancelFunc
	active atomic.Bool
}

// New constructs the tcplife module from its config section.
func New(opts config.Options, tk toolkit.Toolkit) (module.Module, error) {
	spec, err := module.SpecFromOptions("tcplife", opts)
	if err != nil {
		return nil, err
	}

	events := cache.NewEventCache(spec.CacheCapacity)
	return &collector{
		spec:     spec,
		tk:       tk,
		events:   events,
		ingestor: ingest.New(spec.Name, events),
	}, nil
}

func (c *collector) DeclareMetrics() (bool, []bridge.ItemDesc) {
	return true, items
}

// Compile assembles the final program text, picks the tracepoint or
// kprobe form the running kernel supports, attaches it and starts the
// background ingest task. Any failure is terminal for this module.
func (c *collector) Compile(ctx context.Context) error {
	text, err := compat.Select(ctx, c.tk, template)
	if err != nil {
		return c.fail(err)
	}

	text, err = progtext.NewBuilder(text).
		Filter("pid", progtext.FilterSpec{
			Subject: "pid", Values: c.spec.PIDs}).
		Filter("lport", progtext.FilterSpec{
			Subject: "lport", Values: c.spec.LocalPorts}).
		Filter("dport", progtext.FilterSpec{
			Subject: "dport", Values: c.spec.RemotePorts}).
		Render()
	if err != nil {
		return c.fail(err)
	}

	hook := toolkit.HookSpec{
		Kind:    toolkit.HookKprobe,
		Target:  "tcp_set_state",
		Program: "trace_set_state",
	}
	if strings.Contains(text, "tracepoint/sock/inet_sock_set_state") {
		hook = toolkit.HookSpec{
			Kind:    toolkit.HookTracepoint,
			Target:  "sock:inet_sock_set_state",
			Program: "trace_set_state",
		}
	}

	prog, err := toolkit.Load(ctx, c.tk, toolkit.LoadSpec{
		Text:  text,
		Hooks: []toolkit.HookSpec{hook},
		RingBuffers: []toolkit.RingBufferSpec{
			c.ingestor.RingBuffer("ipv4_events", c.spec.RingBufferPages, ingest.DecodeV4),
			c.ingestor.RingBuffer("ipv6_events", c.spec.RingBufferPages, ingest.DecodeV6),
		},
	})
	if err != nil {
		return c.fail(err)
	}

	ingestCtx, cancel := context.WithCancel(context.Background())
	c.prog = prog
	c.cancel = cancel
	c.active.Store(true)
	c.ingestor.Start(ingestCtx, prog)

	log.Infof("Module %s attached via %s", c.spec.Name, hook)
	return nil
}

func (c *collector) fail(err error) error {
	c.active.Store(false)
	metrics.Add(metrics.IDActivationFailures, 1)
	log.Errorf("Module %s disabled: %v", c.spec.Name, err)
	return err
}

// Refresh publishes one instance per cached session, newest first.
// Instance names are session sequence positions.
func (c *collector) Refresh() []cache.Instance {
	if !c.active.Load() {
		return nil
	}

	metrics.AddSlice(append(c.ingestor.Metrics(),
		metrics.Metric{ID: metrics.IDRefreshes, Value: 1}))

	n := c.events.Len()
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = strconv.Itoa(i)
	}
	domain := cache.NewDomain(names)
	c.bridge.SetDomain(domain)
	return domain.Instances()
}

func (c *collector) ReadValue(item bridge.ItemID, inst cache.Handle) (bridge.Value, bridge.Validity) {
	if !c.active.Load() {
		return bridge.Unavailable()
	}
	name, ok := c.bridge.Lookup(inst)
	if !ok {
		return bridge.Unavailable()
	}
	idx, err := strconv.Atoi(name)
	if err != nil {
		return bridge.Unavailable()
	}
	ev, ok := c.events.At(idx)
	if !ok {
		// Evicted between refresh and read.
		return bridge.Unavailable()
	}

	switch item {
	case itemPID:
		return bridge.IntValue(int64(ev.PID)), bridge.ValueOK
	case itemComm:
		return bridge.StringValue(ev.Comm), bridge.ValueOK
	case itemLAddr:
		return bridge.StringValue(ev.SAddr.String()), bridge.ValueOK
	case itemLPort:
		return bridge.IntValue(int64(ev.LPort)), bridge.ValueOK
	case itemRAddr:
		return bridge.StringValue(ev.DAddr.String()), bridge.ValueOK
	case itemRPort:
		return bridge.IntValue(int64(ev.DPort)), bridge.ValueOK
	case itemTX:
		return bridge.IntValue(int64(ev.TXBytes)), bridge.ValueOK
	case itemRX:
		return bridge.IntValue(int64(ev.RXBytes)), bridge.ValueOK
	case itemDuration:
		return bridge.IntValue(ev.Span.Microseconds()), bridge.ValueOK
	default:
		return bridge.Unavailable()
	}
}

// Close detaches the program, which also unblocks the ingest task,
// and discards all cached data so later reads report unavailability.
func (c *collector) Close() {
	if !c.active.Swap(false) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.prog != nil {
		_ = c.prog.Detach()
		c.prog = nil
	}
	c.events.Discard()
	c.bridge.Clear()
}
