// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package histogram reconstructs kernel-native log2 histogram tables
// into labeled bucket ranges. Kernel programs keep distributions in
// compact slot arrays indexed by log2 of the measured value; userspace
// needs contiguous, stably named ranges to build an instance domain.
package histogram // import "github.com/tracekit/bpfmetrics/histogram"

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Slots is the fixed width of a kernel-side log2 slot array.
const Slots = 64

// Bucket is one reconstructed range [Low, High] with its count.
type Bucket struct {
	Low   uint64
	High  uint64
	Count uint64
}

// Key returns the stable instance name for the bucket.
func (b Bucket) Key() string {
	return fmt.Sprintf("%d-%d", b.Low, b.High)
}

// DecodeRow expands a flat log2 slot array into contiguous buckets.
// Buckets run from slot 1 up to the highest populated slot, or just
// the first bucket when the row is empty, so the resulting instance
// domain is never empty. Empty slots inside the range materialize with
// a zero count.
func DecodeRow(counts []uint64) []Bucket {
	maxSlot := 1
	for i, c := range counts {
		if c > 0 && i > maxSlot {
			maxSlot = i
		}
	}

	buckets := make([]Bucket, 0, maxSlot)
	for i := 1; i <= maxSlot; i++ {
		low := uint64(1<<uint(i)) >> 1
		high := uint64(1<<uint(i)) - 1
		if low == high {
			// Avoid the degenerate 1-1 singleton at the origin.
			low--
		}
		var count uint64
		if i < len(counts) {
			count = counts[i]
		}
		buckets = append(buckets, Bucket{Low: low, High: high, Count: count})
	}
	return buckets
}

// Merge accumulates buckets into a key-to-count mapping, summing
// counts on repeated keys.
func Merge(dst map[string]uint64, buckets []Bucket) {
	for _, b := range buckets {
		dst[b.Key()] += b.Count
	}
}

// UnionKeys decodes every section's row independently and returns the
// union of bucket keys across all sections, sorted ascending by the
// numeric low bound. The sort must be numeric: live bucket sets change
// between refreshes and instance identity has to stay stable.
func UnionKeys(sections map[uint32][]uint64) []string {
	seen := make(map[string]struct{})
	for _, counts := range sections {
		for _, b := range DecodeRow(counts) {
			seen[b.Key()] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys sorts "low-high" keys ascending by their numeric low bound.
func SortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		return lowBound(keys[i]) < lowBound(keys[j])
	})
}

func lowBound(key string) uint64 {
	low, _, ok := strings.Cut(key, "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(low, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
