// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/tracekit/bpfmetrics/metrics"

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// Metric is the type for a metric id/value pair.
type Metric struct {
	ID    MetricID
	Value MetricValue
}

// MetricType classifies how a metric value is interpreted.
type MetricType uint8

const (
	MetricTypeCounter MetricType = iota + 1
	MetricTypeGauge
)

// MetricDefinition describes one internal metric.
type MetricDefinition struct {
	ID          MetricID
	Name        string
	Description string
	Unit        string
	Type        MetricType
}
