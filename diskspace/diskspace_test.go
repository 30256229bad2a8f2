// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package diskspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeBytesReturnsPositiveValueForTmpDir(t *testing.T) {
	free, err := FreeBytes(os.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestEventCapacityIsConsistentWithFreeBytes(t *testing.T) {
	dir := t.TempDir()
	free, err := FreeBytes(dir)
	require.NoError(t, err)

	cap, err := EventCapacity(dir)
	require.NoError(t, err)

	if free <= SafetyMarginBytes {
		assert.Equal(t, int64(0), cap)
		return
	}
	assert.Equal(t, int64(free-SafetyMarginBytes)/BytesPerEvent, cap)
	assert.GreaterOrEqual(t, cap, int64(0))
}

func TestFreeBytesErrorsOnMissingPath(t *testing.T) {
	_, err := FreeBytes("/nonexistent/path/that/should/not/exist")
	assert.Error(t, err)
}
