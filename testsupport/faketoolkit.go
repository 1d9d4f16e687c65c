// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package testsupport provides a scriptable in-memory toolkit so module
// tests can exercise the full activate/ingest/refresh/read path without
// a compiler or kernel.
package testsupport // import "github.com/tracekit/bpfmetrics/testsupport"

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tracekit/bpfmetrics/toolkit"
)

// FakeTable is one scripted kernel table, visited in entry order.
type FakeTable struct {
	Keys   [][]byte
	Values [][]byte
}

// Put appends one entry.
func (t *FakeTable) Put(key, value []byte) {
	t.Keys = append(t.Keys, key)
	t.Values = append(t.Values, value)
}

func (t *FakeTable) ForEach(fn func(key, value []byte) bool) error {
	for i := range t.Keys {
		if !fn(t.Keys[i], t.Values[i]) {
			return nil
		}
	}
	return nil
}

// FakeToolkit implements toolkit.Toolkit in memory. Compile rejects
// any text containing one of RejectSnippets, which lets tests steer
// capability trial-compiles.
type FakeToolkit struct {
	CompileErr     error
	RejectSnippets []string

	// Script applied to every program compiled after it is set.
	AttachErr error
	BufferErr error
	Tables    map[string]*FakeTable

	mu       sync.Mutex
	Compiled []string
	Programs []*FakeProgram
}

var _ toolkit.Toolkit = (*FakeToolkit)(nil)

func (tk *FakeToolkit) Compile(_ context.Context, text string) (toolkit.Program, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	tk.Compiled = append(tk.Compiled, text)
	if tk.CompileErr != nil {
		return nil, tk.CompileErr
	}
	for _, snippet := range tk.RejectSnippets {
		if strings.Contains(text, snippet) {
			return nil, fmt.Errorf("rejected text containing %q", snippet)
		}
	}

	tables := tk.Tables
	if tables == nil {
		tables = map[string]*FakeTable{}
	}
	prog := &FakeProgram{
		Text:      text,
		Tables:    tables,
		AttachErr: tk.AttachErr,
		BufferErr: tk.BufferErr,
		buffers:   map[string]ringBinding{},
		done:      make(chan struct{}),
	}
	tk.Programs = append(tk.Programs, prog)
	return prog, nil
}

// LastProgram returns the most recently compiled program.
func (tk *FakeToolkit) LastProgram() *FakeProgram {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if len(tk.Programs) == 0 {
		return nil
	}
	return tk.Programs[len(tk.Programs)-1]
}

type ringBinding struct {
	onEvent func([]byte)
	onLost  func(uint64)
}

// FakeProgram is one compiled unit. Tests inject ring buffer records
// with Emit and overruns with Lose, and script table content through
// Tables.
type FakeProgram struct {
	Text   string
	Tables map[string]*FakeTable

	AttachErr error
	BufferErr error

	mu       sync.Mutex
	hooks    []string
	buffers  map[string]ringBinding
	detached bool
	done     chan struct{}
}

var _ toolkit.Program = (*FakeProgram)(nil)

func (p *FakeProgram) Attach(hook toolkit.HookSpec) error {
	if p.AttachErr != nil {
		return p.AttachErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook.String())
	return nil
}

// Hooks lists every attachment in order, as "kind:target" strings.
func (p *FakeProgram) Hooks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.hooks...)
}

func (p *FakeProgram) OpenRingBuffer(name string, _ int,
	onEvent func([]byte), onLost func(uint64)) error {
	if p.BufferErr != nil {
		return p.BufferErr
	}
	if onLost == nil {
		return fmt.Errorf("ring buffer %s: missing overrun callback", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers[name] = ringBinding{onEvent: onEvent, onLost: onLost}
	return nil
}

// Poll blocks until the program is detached or ctx is canceled.
func (p *FakeProgram) Poll(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
	}
	return nil
}

func (p *FakeProgram) Table(name string) (toolkit.Table, error) {
	t, ok := p.Tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table %q", name)
	}
	return t, nil
}

func (p *FakeProgram) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return nil
	}
	p.detached = true
	close(p.done)
	return nil
}

// Detached reports whether Detach has been called.
func (p *FakeProgram) Detached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detached
}

// Emit delivers one raw record to the named ring buffer's callback, as
// the poll loop would.
func (p *FakeProgram) Emit(name string, raw []byte) error {
	p.mu.Lock()
	binding, ok := p.buffers[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("ring buffer %s not bound", name)
	}
	binding.onEvent(raw)
	return nil
}

// Lose reports n lost records on the named ring buffer.
func (p *FakeProgram) Lose(name string, n uint64) error {
	p.mu.Lock()
	binding, ok := p.buffers[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("ring buffer %s not bound", name)
	}
	binding.onLost(n)
	return nil
}
