// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package progtext assembles kernel program text from small fixed
// templates. Templates carry named slot markers; the builder renders
// filter predicates and repeated probe fragments into them. This is
// parametric generation of a handful of known slots, not a general
// code generator: Render fails on any marker left unresolved.
//
// Slot markers are single lines of the form
//
//	//@filter:NAME
//	//@probe:NAME
//
// and may be indented; rendered text inherits the marker's indentation.
package progtext // import "github.com/tracekit/bpfmetrics/progtext"

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoAttachPoints is returned when a probe slot is expanded with zero
// bindings, i.e. no attach point matched. A module with nothing to
// attach to must fail loudly rather than load a no-op program.
var ErrNoAttachPoints = errors.New("no matching attach points for probe expansion")

const (
	filterPrefix = "//@filter:"
	probePrefix  = "//@probe:"
	markerPrefix = "//@"
)

// FilterSpec describes one filter slot. An empty Values set renders to
// nothing: the slot is stripped and every event passes, which is the
// maximal-throughput configuration. A non-empty set renders an early
// return unless the subject matches one of the values. Decl, when set,
// declares the subject identifier for call sites that lack ambient
// access to it.
type FilterSpec struct {
	Subject string
	Decl    string
	Values  []uint32
}

// Binding holds the token substitutions for one probe instantiation.
// Fragment tokens are spelled __KEY__.
type Binding map[string]string

// Builder renders slots of one template. Methods record the first
// error and keep chaining; Render reports it.
type Builder struct {
	text string
	err  error
}

// NewBuilder starts rendering the given template text.
func NewBuilder(text string) *Builder {
	return &Builder{text: text}
}

// Filter renders the named filter slot.
func (b *Builder) Filter(name string, f FilterSpec) *Builder {
	if b.err != nil {
		return b
	}
	b.replaceMarker(filterPrefix+name, renderFilter(f))
	return b
}

// Probe expands the named probe slot into one fragment per binding,
// preceded by the shared static declarations, which are emitted exactly
// once no matter how many instantiations follow.
func (b *Builder) Probe(name, static, fragment string, bindings []Binding) *Builder {
	if b.err != nil {
		return b
	}
	if len(bindings) == 0 {
		b.err = fmt.Errorf("probe slot %q: %w", name, ErrNoAttachPoints)
		return b
	}

	parts := make([]string, 0, len(bindings)+1)
	if static != "" {
		parts = append(parts, static)
	}
	for _, binding := range bindings {
		pairs := make([]string, 0, 2*len(binding))
		for token, value := range binding {
			pairs = append(pairs, "__"+token+"__", value)
		}
		parts = append(parts, strings.NewReplacer(pairs...).Replace(fragment))
	}
	b.replaceMarker(probePrefix+name, strings.Join(parts, "\n"))
	return b
}

// Render returns the final program text. It fails if any slot marker
// is still present or if a previous step failed.
func (b *Builder) Render() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	for _, line := range strings.Split(b.text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), markerPrefix) {
			return "", fmt.Errorf("unresolved template marker %q",
				strings.TrimSpace(line))
		}
	}
	return b.text, nil
}

// replaceMarker substitutes the whole marker line. An empty
// replacement removes the line; otherwise every replacement line gets
// the marker's indentation.
func (b *Builder) replaceMarker(marker, replacement string) {
	lines := strings.Split(b.text, "\n")
	found := false
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != marker {
			out = append(out, line)
			continue
		}
		found = true
		if replacement == "" {
			continue
		}
		indent := line[:strings.Index(line, marker)]
		for _, rline := range strings.Split(replacement, "\n") {
			out = append(out, indent+rline)
		}
	}
	if !found {
		b.err = fmt.Errorf("template marker %q not present", marker)
		return
	}
	b.text = strings.Join(out, "\n")
}

func renderFilter(f FilterSpec) string {
	if len(f.Values) == 0 {
		return ""
	}
	conds := make([]string, len(f.Values))
	for i, v := range f.Values {
		conds[i] = fmt.Sprintf("%s != %d", f.Subject, v)
	}
	guard := fmt.Sprintf("if (%s) { return 0; }", strings.Join(conds, " && "))
	if f.Decl != "" {
		return f.Decl + "\n" + guard
	}
	return guard
}
