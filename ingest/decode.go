// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package ingest // import "github.com/tracekit/bpfmetrics/ingest"

import (
	"bytes"
	"fmt"
	"net/netip"
	"time"
	"unsafe"

	"github.com/tracekit/bpfmetrics/cache"
)

// rawEventV4 mirrors the C record written on the v4 ring buffer path.
// Field order keeps every u64 naturally aligned; the v6 variant
// differs only in address width.
type rawEventV4 struct {
	PID    uint32
	Comm   [16]byte
	SAddr  [4]byte
	DAddr  [4]byte
	LPort  uint16
	DPort  uint16
	TX     uint64
	RX     uint64
	SpanUS uint64
}

// rawEventV6 mirrors the C record written on the v6 ring buffer path.
type rawEventV6 struct {
	PID    uint32
	Comm   [16]byte
	SAddr  [16]byte
	DAddr  [16]byte
	LPort  uint16
	DPort  uint16
	TX     uint64
	RX     uint64
	SpanUS uint64
}

// DecodeV4 normalizes one v4 record. The raw buffer is only valid for
// the duration of the call; all data is copied out.
func DecodeV4(raw []byte) (cache.Event, error) {
	if len(raw) < int(unsafe.Sizeof(rawEventV4{})) {
		return cache.Event{}, fmt.Errorf("v4 record too short: %d bytes", len(raw))
	}
	rec := (*rawEventV4)(unsafe.Pointer(&raw[0]))
	return cache.Event{
		PID:     rec.PID,
		Comm:    commString(rec.Comm),
		SAddr:   netip.AddrFrom4(rec.SAddr),
		DAddr:   netip.AddrFrom4(rec.DAddr),
		LPort:   rec.LPort,
		DPort:   rec.DPort,
		TXBytes: rec.TX,
		RXBytes: rec.RX,
		Span:    time.Duration(rec.SpanUS) * time.Microsecond,
	}, nil
}

// DecodeV6 normalizes one v6 record.
func DecodeV6(raw []byte) (cache.Event, error) {
	if len(raw) < int(unsafe.Sizeof(rawEventV6{})) {
		return cache.Event{}, fmt.Errorf("v6 record too short: %d bytes", len(raw))
	}
	rec := (*rawEventV6)(unsafe.Pointer(&raw[0]))
	return cache.Event{
		PID:     rec.PID,
		Comm:    commString(rec.Comm),
		SAddr:   netip.AddrFrom16(rec.SAddr),
		DAddr:   netip.AddrFrom16(rec.DAddr),
		LPort:   rec.LPort,
		DPort:   rec.DPort,
		TXBytes: rec.TX,
		RXBytes: rec.RX,
		Span:    time.Duration(rec.SpanUS) * time.Microsecond,
	}, nil
}

// commString copies the NUL-terminated task name out of the record.
func commString(comm [16]byte) string {
	if i := bytes.IndexByte(comm[:], 0); i >= 0 {
		return string(comm[:i])
	}
	return string(comm[:])
}
