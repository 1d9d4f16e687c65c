// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"net/netip"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawBytesV4(rec *rawEventV4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(rec)), unsafe.Sizeof(*rec))
}

func rawBytesV6(rec *rawEventV6) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(rec)), unsafe.Sizeof(*rec))
}

func comm(name string) (out [16]byte) {
	copy(out[:], name)
	return out
}

func TestDecodeV4(t *testing.T) {
	rec := rawEventV4{
		PID:    1234,
		Comm:   comm("curl"),
		SAddr:  [4]byte{10, 0, 0, 1},
		DAddr:  [4]byte{93, 184, 216, 34},
		LPort:  43210,
		DPort:  443,
		TX:     2048,
		RX:     65536,
		SpanUS: 1_500_000,
	}

	ev, err := DecodeV4(rawBytesV4(&rec))
	require.NoError(t, err)

	assert.Equal(t, uint32(1234), ev.PID)
	assert.Equal(t, "curl", ev.Comm)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), ev.SAddr)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), ev.DAddr)
	assert.Equal(t, uint16(43210), ev.LPort)
	assert.Equal(t, uint16(443), ev.DPort)
	assert.Equal(t, uint64(2048), ev.TXBytes)
	assert.Equal(t, uint64(65536), ev.RXBytes)
	assert.Equal(t, 1500*time.Millisecond, ev.Span)
}

func TestDecodeV6(t *testing.T) {
	saddr := netip.MustParseAddr("2001:db8::1")
	daddr := netip.MustParseAddr("2001:db8::2")
	rec := rawEventV6{
		PID:    99,
		Comm:   comm("nginx"),
		SAddr:  saddr.As16(),
		DAddr:  daddr.As16(),
		LPort:  8080,
		DPort:  31337,
		TX:     1,
		RX:     2,
		SpanUS: 42,
	}

	ev, err := DecodeV6(rawBytesV6(&rec))
	require.NoError(t, err)

	assert.Equal(t, uint32(99), ev.PID)
	assert.Equal(t, "nginx", ev.Comm)
	assert.Equal(t, saddr, ev.SAddr)
	assert.Equal(t, daddr, ev.DAddr)
	assert.Equal(t, 42*time.Microsecond, ev.Span)
}

func TestDecodeRejectsShortRecords(t *testing.T) {
	_, err := DecodeV4(make([]byte, 8))
	assert.Error(t, err)
	_, err = DecodeV6(make([]byte, int(unsafe.Sizeof(rawEventV4{}))))
	assert.Error(t, err)
}

func TestCommStringWithoutTerminator(t *testing.T) {
	full := [16]byte{}
	for i := range full {
		full[i] = 'x'
	}
	assert.Equal(t, "xxxxxxxxxxxxxxxx", commString(full))
}
