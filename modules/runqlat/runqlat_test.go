// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package runqlat

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/progtext"
	"github.com/tracekit/bpfmetrics/testsupport"
)

func distTable(sections map[uint32]map[uint32]uint64) *testsupport.FakeTable {
	table := &testsupport.FakeTable{}
	for cpu, slots := range sections {
		for slot, count := range slots {
			key := make([]byte, 8)
			binary.LittleEndian.PutUint32(key[0:4], cpu)
			binary.LittleEndian.PutUint32(key[4:8], slot)
			value := make([]byte, 8)
			binary.LittleEndian.PutUint64(value, count)
			table.Put(key, value)
		}
	}
	return table
}

func newCollector(t *testing.T, tk *testsupport.FakeToolkit,
	symbols []string) *collector {
	t.Helper()
	mod, err := New(config.MapOptions{}, tk)
	require.NoError(t, err)
	c := mod.(*collector)
	c.discover = func(string) ([]string, error) {
		return symbols, nil
	}
	return c
}

func TestCompileExpandsDiscoveredSymbols(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	c := newCollector(t, tk,
		[]string{"finish_task_switch", "finish_task_switch.isra.0"})
	require.NoError(t, c.Compile(context.Background()))
	defer c.Close()

	prog := tk.LastProgram()
	assert.Equal(t, []string{
		"tracepoint:sched:sched_wakeup",
		"kprobe:finish_task_switch",
		"kprobe:finish_task_switch.isra.0",
	}, prog.Hooks())
	assert.Contains(t, prog.Text, `SEC("kprobe/finish_task_switch")`)
	assert.Contains(t, prog.Text, "trace_switch_0")
	assert.Contains(t, prog.Text, `SEC("kprobe/finish_task_switch.isra.0")`)
	assert.Contains(t, prog.Text, "trace_switch_1")
	assert.NotContains(t, prog.Text, "//@")

	// The slot helper must start at 1 so slot i matches the decoder's
	// [2^(i-1), 2^i - 1] labeling and small values are not dropped.
	assert.Contains(t, prog.Text, "__u32 r = 1;")
}

// The "pattern" option overrides the default scheduler symbol pattern.
func TestPatternOption(t *testing.T) {
	tk := &testsupport.FakeToolkit{}

	mod, err := New(config.MapOptions{"pattern": "schedule_tail"}, tk)
	require.NoError(t, err)
	c := mod.(*collector)

	var got string
	c.discover = func(pattern string) ([]string, error) {
		got = pattern
		return []string{"schedule_tail"}, nil
	}
	require.NoError(t, c.Compile(context.Background()))
	defer c.Close()
	assert.Equal(t, "schedule_tail", got)

	mod, err = New(config.MapOptions{}, tk)
	require.NoError(t, err)
	assert.Equal(t, switchPattern, mod.(*collector).pattern)
}

// No probeable scheduler symbol means nothing to attach; the module
// must fail instead of loading a no-op program.
func TestCompileFailsWithoutAttachPoints(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	c := newCollector(t, tk, nil)

	err := c.Compile(context.Background())
	require.ErrorIs(t, err, progtext.ErrNoAttachPoints)
	assert.Nil(t, c.Refresh())
}

func TestRefreshUnionsSections(t *testing.T) {
	tk := &testsupport.FakeToolkit{
		Tables: map[string]*testsupport.FakeTable{
			"dist": distTable(map[uint32]map[uint32]uint64{
				0: {1: 5},
				1: {3: 2},
			}),
		},
	}
	c := newCollector(t, tk, []string{"finish_task_switch"})
	require.NoError(t, c.Compile(context.Background()))
	defer c.Close()

	instances := c.Refresh()
	require.Len(t, instances, 3)
	assert.Equal(t, "0-1", instances[0].Name)
	assert.Equal(t, "2-3", instances[1].Name)
	assert.Equal(t, "4-7", instances[2].Name)

	// Per-bucket values sum over the CPU sections.
	for i, want := range []int64{5, 0, 2} {
		v, validity := c.ReadValue(itemLatency, instances[i].Handle)
		require.Equal(t, bridge.ValueOK, validity)
		assert.Equal(t, want, v.Int)
	}
}

// Before the first sample there is no CPU section at all; the domain
// still carries the first bucket.
func TestRefreshEmptyTable(t *testing.T) {
	tk := &testsupport.FakeToolkit{
		Tables: map[string]*testsupport.FakeTable{"dist": {}},
	}
	c := newCollector(t, tk, []string{"finish_task_switch"})
	require.NoError(t, c.Compile(context.Background()))
	defer c.Close()

	instances := c.Refresh()
	require.Len(t, instances, 1)
	assert.Equal(t, "0-1", instances[0].Name)
}
