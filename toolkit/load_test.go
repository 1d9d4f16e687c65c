// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit/bpfmetrics/testsupport"
	"github.com/tracekit/bpfmetrics/toolkit"
)

func loadSpec() toolkit.LoadSpec {
	return toolkit.LoadSpec{
		Text: "int trace(void *ctx) { return 0; }",
		Hooks: []toolkit.HookSpec{
			{Kind: toolkit.HookKprobe, Target: "tcp_set_state", Program: "trace"},
			{Kind: toolkit.HookTracepoint, Target: "sock:inet_sock_set_state", Program: "trace"},
		},
		RingBuffers: []toolkit.RingBufferSpec{
			{Name: "events", Pages: 64, OnEvent: func([]byte) {}, OnLost: func(uint64) {}},
		},
	}
}

func TestLoadAttachesAndBinds(t *testing.T) {
	tk := &testsupport.FakeToolkit{}

	prog, err := toolkit.Load(context.Background(), tk, loadSpec())
	require.NoError(t, err)

	fake := tk.LastProgram()
	assert.Equal(t, []string{
		"kprobe:tcp_set_state",
		"tracepoint:sock:inet_sock_set_state",
	}, fake.Hooks())
	assert.False(t, fake.Detached())
	assert.NoError(t, fake.Emit("events", []byte{1}))

	require.NoError(t, prog.Detach())
}

func TestLoadCompileFailure(t *testing.T) {
	tk := &testsupport.FakeToolkit{CompileErr: errors.New("verifier said no")}

	_, err := toolkit.Load(context.Background(), tk, loadSpec())
	require.Error(t, err)
	assert.Nil(t, tk.LastProgram())
}

// A failed attach must not leave the program half-loaded.
func TestLoadAttachFailureDetaches(t *testing.T) {
	tk := &testsupport.FakeToolkit{AttachErr: errors.New("no such symbol")}

	_, err := toolkit.Load(context.Background(), tk, loadSpec())
	require.Error(t, err)
	assert.True(t, tk.LastProgram().Detached())
}

func TestLoadRingBufferFailureDetaches(t *testing.T) {
	tk := &testsupport.FakeToolkit{BufferErr: errors.New("no such map")}

	_, err := toolkit.Load(context.Background(), tk, loadSpec())
	require.Error(t, err)
	assert.True(t, tk.LastProgram().Detached())
}

func TestTrialCompile(t *testing.T) {
	tk := &testsupport.FakeToolkit{}
	require.NoError(t, toolkit.TrialCompile(context.Background(), tk, "int f();"))
	assert.True(t, tk.LastProgram().Detached())

	tk = &testsupport.FakeToolkit{CompileErr: errors.New("nope")}
	assert.Error(t, toolkit.TrialCompile(context.Background(), tk, "int f();"))
}

func TestHookSpecString(t *testing.T) {
	assert.Equal(t, "kprobe:tcp_set_state",
		toolkit.HookSpec{Kind: toolkit.HookKprobe, Target: "tcp_set_state"}.String())
	assert.Equal(t, "kretprobe:tcp_set_state",
		toolkit.HookSpec{Kind: toolkit.HookKretprobe, Target: "tcp_set_state"}.String())
	assert.Equal(t, "tracepoint:sock:inet_sock_set_state",
		toolkit.HookSpec{Kind: toolkit.HookTracepoint, Target: "sock:inet_sock_set_state"}.String())
}
