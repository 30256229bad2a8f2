// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rawlog

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/dvsflow/event"
)

const testHeight = 180

func testEvents() []event.Raw {
	return []event.Raw{
		{X: 0, Y: 0, T: 100, P: event.OFF},
		{X: 10, Y: 20, T: 150, P: event.ON},
		{X: 127, Y: 179, T: 999999, P: event.ON},
	}
}

func TestV2RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.aedat2")
	w, err := Open(path, V2, testHeight, nil, zerolog.Nop())
	require.NoError(t, err)
	for _, r := range testEvents() {
		require.NoError(t, w.WriteEvent(r))
	}
	require.NoError(t, w.Close())

	got, err := ReadAll(path, V2, testHeight)
	require.NoError(t, err)
	assert.Equal(t, testEvents(), got)
}

func TestV3RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.aedat3")
	w, err := Open(path, V3, testHeight, nil, zerolog.Nop())
	require.NoError(t, err)
	for _, r := range testEvents() {
		require.NoError(t, w.WriteEvent(r))
	}
	require.NoError(t, w.Close())

	got, err := ReadAll(path, V3, testHeight)
	require.NoError(t, err)
	assert.Equal(t, testEvents(), got)
}

func TestWriteAfterCloseIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.aedat2")
	w, err := Open(path, V2, testHeight, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.WriteEvent(event.Raw{X: 1, Y: 1, T: 1}))
}
