//go:build linux

// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	cebpf "github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/metrics"
	"github.com/tracekit/bpfmetrics/rlimit"
)

// Config parameterizes the clang-backed toolkit.
type Config struct {
	// ClangPath overrides the compiler binary, default "clang".
	ClangPath string
	// CFlags are passed verbatim to every compile.
	CFlags []string
	// VerifierLogLevel is handed to the kernel verifier (0, 1 or 2).
	VerifierLogLevel uint32
}

// New returns the production toolkit backed by clang and cilium/ebpf.
func New(cfg Config) Toolkit {
	if cfg.ClangPath == "" {
		cfg.ClangPath = "clang"
	}
	return &clangToolkit{cfg: cfg}
}

type clangToolkit struct {
	cfg Config
}

func (tk *clangToolkit) Compile(ctx context.Context, text string) (Program, error) {
	dir, err := os.MkdirTemp("", "bpfmetrics-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "prog.c")
	obj := filepath.Join(dir, "prog.o")
	if err = os.WriteFile(src, []byte(text), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write program text: %w", err)
	}

	args := append([]string{"-O2", "-g", "-target", "bpf", "-c", src, "-o", obj},
		tk.cfg.CFlags...)
	cmd := exec.CommandContext(ctx, tk.cfg.ClangPath, args...)
	if out, cerr := cmd.CombinedOutput(); cerr != nil {
		return nil, fmt.Errorf("compile failed: %v: %s", cerr,
			strings.TrimSpace(string(out)))
	}

	spec, err := cebpf.LoadCollectionSpec(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compiled object: %w", err)
	}

	restoreRlimit, err := rlimit.MaximizeMemlock()
	if err != nil {
		return nil, fmt.Errorf("failed to adjust rlimit: %w", err)
	}
	defer restoreRlimit()

	coll, err := cebpf.NewCollectionWithOptions(spec, cebpf.CollectionOptions{
		Programs: cebpf.ProgramOptions{
			LogLevel: cebpf.LogLevel(tk.cfg.VerifierLogLevel),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	return &loadedProgram{coll: coll}, nil
}

// loadedProgram is one kernel-resident unit: the collection plus all
// links and ring buffer readers acquired on its behalf.
type loadedProgram struct {
	mu       sync.Mutex
	coll     *cebpf.Collection
	links    []link.Link
	readers  []*ringReader
	detached atomic.Bool
}

type ringReader struct {
	name    string
	rd      *perf.Reader
	onEvent func([]byte)
	onLost  func(uint64)
}

func (p *loadedProgram) Attach(hook HookSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prog, ok := p.coll.Programs[hook.Program]
	if !ok {
		return fmt.Errorf("program %q not found in compiled unit", hook.Program)
	}

	var l link.Link
	var err error
	switch hook.Kind {
	case HookKprobe:
		l, err = link.Kprobe(hook.Target, prog, nil)
	case HookKretprobe:
		l, err = link.Kretprobe(hook.Target, prog, nil)
	case HookTracepoint:
		group, name, found := strings.Cut(hook.Target, ":")
		if !found {
			return fmt.Errorf("invalid tracepoint target %q", hook.Target)
		}
		l, err = link.Tracepoint(group, name, prog, nil)
	default:
		return fmt.Errorf("unknown hook kind %d", hook.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", hook, err)
	}
	p.links = append(p.links, l)
	return nil
}

func (p *loadedProgram) OpenRingBuffer(name string, pages int,
	onEvent func([]byte), onLost func(uint64)) error {
	if onLost == nil {
		return fmt.Errorf("ring buffer %q: lost-events callback is required", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.coll.Maps[name]
	if !ok {
		return fmt.Errorf("ring buffer map %q not found in compiled unit", name)
	}
	rd, err := perf.NewReader(m, pages*os.Getpagesize())
	if err != nil {
		return fmt.Errorf("failed to open ring buffer %q: %w", name, err)
	}
	p.readers = append(p.readers, &ringReader{
		name:    name,
		rd:      rd,
		onEvent: onEvent,
		onLost:  onLost,
	})
	return nil
}

// Poll drains all bound ring buffers until the program is detached.
// Reads block inside the perf reader; closing the readers on detach is
// what unblocks them.
func (p *loadedProgram) Poll(ctx context.Context) error {
	p.mu.Lock()
	readers := make([]*ringReader, len(p.readers))
	copy(readers, p.readers)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, rr := range readers {
		wg.Add(1)
		go func(rr *ringReader) {
			defer wg.Done()
			rr.drain(ctx)
		}(rr)
	}
	wg.Wait()
	return nil
}

func (rr *ringReader) drain(ctx context.Context) {
	var rec perf.Record
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := rr.rd.ReadInto(&rec); err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			metrics.Add(metrics.IDReadErrors, 1)
			log.Errorf("Ring buffer %s read error: %v", rr.name, err)
			continue
		}
		if rec.LostSamples != 0 {
			rr.onLost(rec.LostSamples)
			continue
		}
		if len(rec.RawSample) == 0 {
			metrics.Add(metrics.IDNoDataRecords, 1)
			continue
		}
		rr.onEvent(rec.RawSample)
	}
}

func (p *loadedProgram) Table(name string) (Table, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.coll.Maps[name]
	if !ok {
		return nil, fmt.Errorf("table %q not found in compiled unit", name)
	}
	return &ebpfTable{m: m}, nil
}

// Detach closes ring buffer readers first so in-flight polls unblock,
// then releases links and the collection.
func (p *loadedProgram) Detach() error {
	if !p.detached.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rr := range p.readers {
		if err := rr.rd.Close(); err != nil {
			log.Errorf("Failed to close ring buffer %s: %v", rr.name, err)
		}
	}
	p.readers = nil
	for _, l := range p.links {
		if err := l.Close(); err != nil {
			log.Errorf("Failed to close link: %v", err)
		}
	}
	p.links = nil
	p.coll.Close()
	return nil
}

type ebpfTable struct {
	m *cebpf.Map
}

func (t *ebpfTable) ForEach(fn func(key, value []byte) bool) error {
	key := make([]byte, t.m.KeySize())
	value := make([]byte, t.m.ValueSize())
	it := t.m.Iterate()
	for it.Next(&key, &value) {
		if !fn(key, value) {
			break
		}
	}
	return it.Err()
}
