// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

// Package modules wires every built-in collector into the static
// registry. The mapping from module identifier to constructor is fixed
// at initialization; configuration only selects from it.
package modules // import "github.com/tracekit/bpfmetrics/modules"

import (
	"github.com/tracekit/bpfmetrics/module"
	"github.com/tracekit/bpfmetrics/modules/biolatency"
	"github.com/tracekit/bpfmetrics/modules/runqlat"
	"github.com/tracekit/bpfmetrics/modules/syscount"
	"github.com/tracekit/bpfmetrics/modules/tcplife"
)

func init() {
	module.Register("tcplife", tcplife.New)
	module.Register("biolatency", biolatency.New)
	module.Register("runqlat", runqlat.New)
	module.Register("syscount", syscount.New)
}
