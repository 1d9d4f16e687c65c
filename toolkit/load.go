// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package toolkit // import "github.com/tracekit/bpfmetrics/toolkit"

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// RingBufferSpec binds one named ring buffer during Load.
type RingBufferSpec struct {
	Name    string
	Pages   int
	OnEvent func([]byte)
	OnLost  func(uint64)
}

// LoadSpec is everything needed to bring one module's program up.
type LoadSpec struct {
	Text        string
	Hooks       []HookSpec
	RingBuffers []RingBufferSpec
}

// Load compiles the final program text, attaches every hook point and
// binds every ring buffer. A failure at any stage detaches the program
// again so no half-attached state persists, logs the cause, and
// returns it so the owning module can mark itself inactive.
func Load(ctx context.Context, tk Toolkit, spec LoadSpec) (Program, error) {
	prog, err := tk.Compile(ctx, spec.Text)
	if err != nil {
		log.Errorf("Failed to compile program: %v", err)
		return nil, err
	}

	for _, hook := range spec.Hooks {
		if err = prog.Attach(hook); err != nil {
			log.Errorf("Failed to attach %s: %v", hook, err)
			_ = prog.Detach()
			return nil, err
		}
	}

	for _, rb := range spec.RingBuffers {
		if err = prog.OpenRingBuffer(rb.Name, rb.Pages, rb.OnEvent, rb.OnLost); err != nil {
			log.Errorf("Failed to bind ring buffer %s: %v", rb.Name, err)
			_ = prog.Detach()
			return nil, err
		}
	}

	return prog, nil
}

// TrialCompile builds text as a throwaway unit and releases it again.
// It reports only whether the toolkit accepted the text; used for
// capability selection before the real program is assembled.
func TrialCompile(ctx context.Context, tk Toolkit, text string) error {
	prog, err := tk.Compile(ctx, text)
	if err != nil {
		return fmt.Errorf("trial compile rejected: %w", err)
	}
	_ = prog.Detach()
	return nil
}
