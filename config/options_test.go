// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt(t *testing.T) {
	opts := MapOptions{"cache_size": " 2048 ", "bad": "x"}

	v, err := Int(opts, "cache_size", 1024)
	require.NoError(t, err)
	assert.Equal(t, 2048, v)

	v, err = Int(opts, "missing", 1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, v)

	_, err = Int(opts, "bad", 0)
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	opts := MapOptions{"path": " /usr/bin/clang "}
	assert.Equal(t, "/usr/bin/clang", String(opts, "path", "clang"))
	assert.Equal(t, "clang", String(opts, "missing", "clang"))
}

func TestUint32List(t *testing.T) {
	tests := map[string]struct {
		raw      string
		expected []uint32
		wantErr  bool
	}{
		"single":     {raw: "443", expected: []uint32{443}},
		"list":       {raw: "80, 443,8080", expected: []uint32{80, 443, 8080}},
		"empty":      {raw: "   ", expected: nil},
		"negative":   {raw: "-1", wantErr: true},
		"not number": {raw: "https", wantErr: true},
		"too large":  {raw: "4294967296", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			values, err := Uint32List(MapOptions{"dport": tc.raw}, "dport")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, values)
		})
	}

	values, err := Uint32List(MapOptions{}, "dport")
	require.NoError(t, err)
	assert.Nil(t, values)
}
