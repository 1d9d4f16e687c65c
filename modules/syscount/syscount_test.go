// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package syscount

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit/bpfmetrics/bridge"
	"github.com/tracekit/bpfmetrics/config"
	"github.com/tracekit/bpfmetrics/testsupport"
)

func countsTable(counts map[uint32]uint64) *testsupport.FakeTable {
	table := &testsupport.FakeTable{}
	for nr, count := range counts {
		key := make([]byte, 4)
		binary.LittleEndian.PutUint32(key, nr)
		value := make([]byte, 8)
		binary.LittleEndian.PutUint64(value, count)
		table.Put(key, value)
	}
	return table
}

func TestCompileAttachesRawSyscallTracepoint(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	mod, err := New(config.MapOptions{}, tk)
	require.NoError(t, err)
	require.NoError(t, mod.Compile(context.Background()))
	defer mod.Close()

	assert.Equal(t, []string{"tracepoint:raw_syscalls:sys_enter"},
		tk.LastProgram().Hooks())
}

// The tracepoint context carries no pid, so a configured pid filter
// must inject the identifier declaration along with the guard.
func TestCompileInjectsPIDDeclaration(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	mod, err := New(config.MapOptions{"process": "42"}, tk)
	require.NoError(t, err)
	require.NoError(t, mod.Compile(context.Background()))
	defer mod.Close()

	text := tk.LastProgram().Text
	assert.Contains(t, text, "__u32 pid = bpf_get_current_pid_tgid() >> 32;")
	assert.Contains(t, text, "if (pid != 42) { return 0; }")
}

func TestCompileOmitsDeclarationWithoutFilter(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	mod, err := New(config.MapOptions{}, tk)
	require.NoError(t, err)
	require.NoError(t, mod.Compile(context.Background()))
	defer mod.Close()

	assert.NotContains(t, tk.LastProgram().Text, "bpf_get_current_pid_tgid")
}

func TestRefreshSortsSyscallsNumerically(t *testing.T) {
	tk := &testsupport.FakeToolkit{
		Tables: map[string]*testsupport.FakeTable{
			"counts": countsTable(map[uint32]uint64{59: 7, 0: 3, 1: 10}),
		},
	}
	mod, err := New(config.MapOptions{}, tk)
	require.NoError(t, err)
	require.NoError(t, mod.Compile(context.Background()))
	c := mod.(*collector)
	defer c.Close()

	instances := c.Refresh()
	require.Len(t, instances, 3)
	assert.Equal(t, "0", instances[0].Name)
	assert.Equal(t, "1", instances[1].Name)
	assert.Equal(t, "59", instances[2].Name)

	for i, want := range []int64{3, 10, 7} {
		v, validity := c.ReadValue(itemCalls, instances[i].Handle)
		require.Equal(t, bridge.ValueOK, validity)
		assert.Equal(t, want, v.Int)
	}
}

func TestRefreshGrowingLiveSetKeepsHandles(t *testing.T) {
	table := countsTable(map[uint32]uint64{1: 10})
	tk := &testsupport.FakeToolkit{
		Tables: map[string]*testsupport.FakeTable{"counts": table},
	}
	mod, err := New(config.MapOptions{}, tk)
	require.NoError(t, err)
	require.NoError(t, mod.Compile(context.Background()))
	c := mod.(*collector)
	defer c.Close()

	first := c.Refresh()
	require.Len(t, first, 1)

	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, 0)
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, 5)
	table.Put(key, value)

	second := c.Refresh()
	require.Len(t, second, 2)

	// The handle issued for syscall 1 still resolves after the set grew.
	v, validity := c.ReadValue(itemCalls, first[0].Handle)
	require.Equal(t, bridge.ValueOK, validity)
	assert.Equal(t, int64(10), v.Int)
}
