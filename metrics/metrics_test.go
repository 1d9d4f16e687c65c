// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureReporter struct {
	ids    []uint32
	values []int64
}

func (r *captureReporter) ReportMetrics(ids []uint32, values []int64) {
	r.ids = append(r.ids, ids...)
	r.values = append(r.values, values...)
}

func TestAddSliceDropsZeroCounters(t *testing.T) {
	reporter := &captureReporter{}
	SetReporter(reporter)
	defer SetReporter(nil)

	AddSlice([]Metric{
		{ID: IDEventsIngested, Value: 10},
		{ID: IDEventsLost, Value: 0},
		{ID: IDReadErrors, Value: 2},
	})

	assert.Equal(t, []uint32{uint32(IDEventsIngested), uint32(IDReadErrors)}, reporter.ids)
	assert.Equal(t, []int64{10, 2}, reporter.values)
}

func TestAddSliceKeepsZeroGauges(t *testing.T) {
	reporter := &captureReporter{}
	SetReporter(reporter)
	defer SetReporter(nil)

	AddSlice([]Metric{{ID: IDActiveModules, Value: 0}})

	assert.Equal(t, []uint32{uint32(IDActiveModules)}, reporter.ids)
	assert.Equal(t, []int64{0}, reporter.values)
}

func TestAddSliceSkipsUnknownIDs(t *testing.T) {
	reporter := &captureReporter{}
	SetReporter(reporter)
	defer SetReporter(nil)

	AddSlice([]Metric{{ID: IDMax, Value: 1}})
	assert.Empty(t, reporter.ids)
}

func TestDefinitionsCoverAllIDs(t *testing.T) {
	seen := map[MetricID]bool{}
	for _, md := range definitions {
		require.False(t, seen[md.ID], "duplicate definition for id %d", md.ID)
		seen[md.ID] = true
		assert.NotEmpty(t, md.Name)
	}
	for id := IDInvalid + 1; id < IDMax; id++ {
		assert.True(t, seen[id], "missing definition for id %d", id)
	}
}
