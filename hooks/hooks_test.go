// Copyright The bpfmetrics Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const functionList = `tcp_set_state
finish_task_switch
finish_task_switch.isra.0 [kvm]
blk_account_io_start
finish_task_switchboard
`

func writeFunctionList(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "available_filter_functions")
	require.NoError(t, os.WriteFile(path, []byte(functionList), 0o644))
	return path
}

func TestMatchingIsAnchored(t *testing.T) {
	d, err := newDiscovery(writeFunctionList(t))
	require.NoError(t, err)

	matches, err := d.Matching(`finish_task_switch(\.isra\.\d+)?`)
	require.NoError(t, err)
	assert.Equal(t, []string{"finish_task_switch", "finish_task_switch.isra.0"}, matches)
}

func TestMatchingIgnoresModuleSuffix(t *testing.T) {
	d, err := newDiscovery(writeFunctionList(t))
	require.NoError(t, err)

	matches, err := d.Matching(`finish_task_switch\.isra\.0`)
	require.NoError(t, err)
	assert.Equal(t, []string{"finish_task_switch.isra.0"}, matches)
}

func TestMatchingEmptyResultIsNotAnError(t *testing.T) {
	d, err := newDiscovery(writeFunctionList(t))
	require.NoError(t, err)

	matches, err := d.Matching("no_such_symbol")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchingCachesPerPattern(t *testing.T) {
	path := writeFunctionList(t)
	d, err := newDiscovery(path)
	require.NoError(t, err)

	first, err := d.Matching("tcp_set_state")
	require.NoError(t, err)
	require.Equal(t, []string{"tcp_set_state"}, first)

	// Second lookup is served from the cache even after the source
	// disappears.
	require.NoError(t, os.Remove(path))
	second, err := d.Matching("tcp_set_state")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatchingInvalidPattern(t *testing.T) {
	d, err := newDiscovery(writeFunctionList(t))
	require.NoError(t, err)

	_, err = d.Matching("(")
	assert.Error(t, err)
}

func TestMatchingMissingFunctionList(t *testing.T) {
	d, err := newDiscovery(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = d.Matching("tcp_set_state")
	assert.Error(t, err)
}
