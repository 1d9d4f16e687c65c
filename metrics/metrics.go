// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the framework's internal self-metrics.
// Providers report id/value pairs; the package forwards them to OTel
// instruments and, if one is set, to an external MetricsReporter.
package metrics // import "github.com/tracekit/bpfmetrics/metrics"

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricsReporter mirrors collected metrics to an external sink, e.g.
// the host agent's own telemetry channel.
type MetricsReporter interface {
	ReportMetrics(ids []uint32, values []int64)
}

var (
	// mutex serializes concurrent calls to AddSlice()
	mutex sync.Mutex

	// metricTypes is used to route values to the right instrument kind
	// and to suppress zero-valued counters.
	metricTypes map[MetricID]MetricType

	// OTel metric instrumentation
	meter    = otel.Meter("github.com/tracekit/bpfmetrics")
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}

	reporterImpl MetricsReporter
)

// SetReporter installs an external mirror for reported metrics.
func SetReporter(r MetricsReporter) {
	reporterImpl = r
}

func init() {
	metricTypes = make(map[MetricID]MetricType, len(definitions))
	for _, md := range definitions {
		metricTypes[md.ID] = md.Type
		switch md.Type {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", md.Type))
		}
	}
}

// AddSlice takes a slice of metrics from a metric provider and reports
// them immediately. Zero-valued counters are dropped so idle modules
// don't emit noise.
func AddSlice(newMetrics []Metric) {
	ctx := context.Background()

	mutex.Lock()
	defer mutex.Unlock()

	ids := make([]uint32, 0, len(newMetrics))
	values := make([]int64, 0, len(newMetrics))

	for _, m := range newMetrics {
		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}
		if m.Value == 0 && typ == MetricTypeCounter {
			continue
		}

		switch typ {
		case MetricTypeCounter:
			counters[m.ID].Add(ctx, int64(m.Value))
		case MetricTypeGauge:
			gauges[m.ID].Record(ctx, int64(m.Value))
		}
		ids = append(ids, uint32(m.ID))
		values = append(values, int64(m.Value))
	}

	if reporterImpl != nil && len(ids) > 0 {
		reporterImpl.ReportMetrics(ids, values)
	}
}

// Add takes a single metric (id and value) from a metric provider.
func Add(id MetricID, value MetricValue) {
	AddSlice([]Metric{{id, value}})
}
