// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

// Below are the metric IDs that the framework reports about itself.
// Only append new IDs, never renumber existing ones.
const (
	// Leave out the 0 value. It's an indication of not explicitly
	// initialized variables.
	IDInvalid MetricID = 0

	// Number of events lost to ring-buffer overruns
	IDEventsLost MetricID = 1

	// Number of events decoded and pushed into a module cache
	IDEventsIngested MetricID = 2

	// Number of ring-buffer read errors
	IDReadErrors MetricID = 3

	// Number of records carrying no payload
	IDNoDataRecords MetricID = 4

	// Number of module refresh cycles served
	IDRefreshes MetricID = 5

	// Number of modules that failed to compile or attach
	IDActivationFailures MetricID = 6

	// Number of value lookups answered with the unavailable sentinel
	IDUnavailableReads MetricID = 7

	// Number of currently active modules
	IDActiveModules MetricID = 8

	// Number of ring-buffer records that failed to decode
	IDDecodeErrors MetricID = 9

	// Always last, not an actual metric ID
	IDMax MetricID = 10
)

// definitions lists the exported name and semantics for every ID above.
var definitions = []MetricDefinition{
	{IDEventsLost, "bpfmetrics.events.lost",
		"Events dropped due to ring buffer overruns", "1", MetricTypeCounter},
	{IDEventsIngested, "bpfmetrics.events.ingested",
		"Events decoded into module caches", "1", MetricTypeCounter},
	{IDReadErrors, "bpfmetrics.ringbuf.read_errors",
		"Errors returned by ring buffer reads", "1", MetricTypeCounter},
	{IDNoDataRecords, "bpfmetrics.ringbuf.no_data",
		"Ring buffer records without payload", "1", MetricTypeCounter},
	{IDRefreshes, "bpfmetrics.module.refreshes",
		"Module refresh cycles", "1", MetricTypeCounter},
	{IDActivationFailures, "bpfmetrics.module.activation_failures",
		"Modules disabled by compile or attach failures", "1", MetricTypeCounter},
	{IDUnavailableReads, "bpfmetrics.module.unavailable_reads",
		"Value lookups answered with the unavailable sentinel", "1", MetricTypeCounter},
	{IDActiveModules, "bpfmetrics.module.active",
		"Currently active modules", "1", MetricTypeGauge},
	{IDDecodeErrors, "bpfmetrics.ringbuf.decode_errors",
		"Ring buffer records that failed to decode", "1", MetricTypeCounter},
}
