// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package compat selects between alternate template regions written
// for differing kernel or toolkit capability. A template may embed two
// mutually exclusive marked regions:
//
//	//@compat:new:begin
//	...newer form...
//	//@compat:new:end
//	//@compat:old:begin
//	...older fallback...
//	//@compat:old:end
//
// Selection trial-compiles the full text with the new regions kept and
// the old regions dropped, so the throwaway unit carries the includes
// and shared declarations the regions depend on. Unrendered slot
// markers are plain C comments at this stage. If the toolkit accepts
// the unit the new form is kept permanently and the old text
// discarded, otherwise the old form is kept. Selection runs once,
// before the final filtered program is assembled, and is never
// retried.
package compat // import "github.com/tracekit/bpfmetrics/compat"

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tracekit/bpfmetrics/toolkit"
)

const (
	newBegin = "//@compat:new:begin"
	newEnd   = "//@compat:new:end"
	oldBegin = "//@compat:old:begin"
	oldEnd   = "//@compat:old:end"
)

// Select resolves all compat regions in text. Text without markers is
// returned unchanged.
func Select(ctx context.Context, tk toolkit.Toolkit, text string) (string, error) {
	parsed, err := parse(text)
	if err != nil {
		return "", err
	}
	if !parsed.hasRegions {
		return text, nil
	}

	if err = toolkit.TrialCompile(ctx, tk, parsed.newText); err != nil {
		log.Debugf("Compat probe rejected newer form, using fallback: %v", err)
		return parsed.oldText, nil
	}
	return parsed.newText, nil
}

type parsedTemplate struct {
	hasRegions bool
	newText    string
	oldText    string
}

func parse(text string) (*parsedTemplate, error) {
	var newLines, oldLines []string

	p := &parsedTemplate{}
	state := "" // "", "new" or "old"

	for _, line := range strings.Split(text, "\n") {
		switch strings.TrimSpace(line) {
		case newBegin:
			if state != "" {
				return nil, fmt.Errorf("nested compat region at %q", newBegin)
			}
			state = "new"
			p.hasRegions = true
		case oldBegin:
			if state != "" {
				return nil, fmt.Errorf("nested compat region at %q", oldBegin)
			}
			state = "old"
			p.hasRegions = true
		case newEnd:
			if state != "new" {
				return nil, fmt.Errorf("unbalanced %q", newEnd)
			}
			state = ""
		case oldEnd:
			if state != "old" {
				return nil, fmt.Errorf("unbalanced %q", oldEnd)
			}
			state = ""
		default:
			switch state {
			case "new":
				newLines = append(newLines, line)
			case "old":
				oldLines = append(oldLines, line)
			default:
				newLines = append(newLines, line)
				oldLines = append(oldLines, line)
			}
		}
	}
	if state != "" {
		return nil, fmt.Errorf("unterminated compat %s region", state)
	}

	p.newText = strings.Join(newLines, "\n")
	p.oldText = strings.Join(oldLines, "\n")
	return p, nil
}
