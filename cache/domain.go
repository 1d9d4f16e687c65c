// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package cache // import "github.com/tracekit/bpfmetrics/cache"

import (
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
)

// Handle is the opaque identifier the host agent uses to address one
// instance of a metric between refresh and read.
type Handle uint32

// Instance pairs a stable instance name with its handle.
type Instance struct {
	Name   string
	Handle Handle
}

// HandleFor derives the handle for an instance name. Handles are
// content hashes rather than positional indices so that an instance
// keeps its identity across refreshes even when the live set around it
// changes.
func HandleFor(name string) Handle {
	return Handle(uint32(xxh3.HashString(name)))
}

// InstanceDomain maps instance names to handles for one refresh cycle.
// It is recomputed wholesale every refresh from the current cache keys.
type InstanceDomain struct {
	instances []Instance
	byHandle  map[Handle]string
}

// NewDomain builds a domain from ordered instance names.
func NewDomain(names []string) *InstanceDomain {
	d := &InstanceDomain{
		instances: make([]Instance, 0, len(names)),
		byHandle:  make(map[Handle]string, len(names)),
	}
	for _, name := range names {
		h := HandleFor(name)
		if prev, ok := d.byHandle[h]; ok {
			if prev != name {
				log.Warnf("Instance handle collision: %q vs %q", prev, name)
			}
			continue
		}
		d.byHandle[h] = name
		d.instances = append(d.instances, Instance{Name: name, Handle: h})
	}
	return d
}

// Instances returns a copy of the domain, in domain order.
func (d *InstanceDomain) Instances() []Instance {
	out := make([]Instance, len(d.instances))
	copy(out, d.instances)
	return out
}

// Lookup resolves a handle back to its instance name.
func (d *InstanceDomain) Lookup(h Handle) (string, bool) {
	name, ok := d.byHandle[h]
	return name, ok
}

// Len returns the number of instances in the domain.
func (d *InstanceDomain) Len() int {
	return len(d.instances)
}
