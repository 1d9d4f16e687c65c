// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks discovers kernel attach points for probe templates
// whose hook symbols vary across kernel builds, e.g. scheduler
// functions that exist as inlined .isra variants. Lookups scan the
// kernel's list of probeable functions and are cached per pattern.
package hooks // import "github.com/tracekit/bpfmetrics/hooks"

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
)

const defaultFunctionsPath = "/sys/kernel/debug/tracing/available_filter_functions"

const cacheSize = 128

// hashString is the freelru hash for pattern keys.
func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// Discovery matches regex patterns against the kernel's probeable
// functions. Results are cached: the function list does not change
// while modules are being configured, and several modules may share a
// pattern.
type Discovery struct {
	path  string
	cache *lru.SyncedLRU[string, []string]
}

// NewDiscovery returns a Discovery reading the default kernel
// function list.
func NewDiscovery() (*Discovery, error) {
	return newDiscovery(defaultFunctionsPath)
}

func newDiscovery(path string) (*Discovery, error) {
	cache, err := lru.NewSynced[string, []string](cacheSize, hashString)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery cache: %w", err)
	}
	return &Discovery{path: path, cache: cache}, nil
}

// Matching returns every probeable kernel function whose name matches
// the anchored pattern. An empty result is not an error here; callers
// attaching dynamically must treat zero matches as fatal.
func (d *Discovery) Matching(pattern string) ([]string, error) {
	if cached, ok := d.cache.Get(pattern); ok {
		return cached, nil
	}

	re, err := regexp.Compile("^(" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid hook pattern %q: %w", pattern, err)
	}

	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel function list: %w", err)
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Lines are "symbol [module]"; only the symbol matters.
		symbol, _, _ := strings.Cut(scanner.Text(), " ")
		if re.MatchString(symbol) {
			matches = append(matches, symbol)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan kernel function list: %w", err)
	}

	d.cache.Add(pattern, matches)
	return matches, nil
}
