// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package planefit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/kernel"
	"github.com/inivation/dvsflow/tsmem"
	"github.com/inivation/dvsflow/undistort"
)

const sensorSize = 21 // odd so the trigger pixel below sits well off every edge

// seedUniformPlane populates mem with a causal neighborhood around (x0, y0)
// that exactly satisfies the fitted plane tau = a*dxu with a = 1/targetU,
// b = 0 (pure horizontal motion, flat across y) — every kernel offset with
// dx in {-1, -2} and dy in {-2..2} is given the timestamp that puts it
// exactly on the plane.
//
// A single-row diagonal stream of events cannot by itself supply nMin=8
// causal neighbors under the default dx=2 kernel: a single row only ever
// offers two same-row causal offsets (dx=-1, dx=-2 relative to a
// rightward-moving trigger). This hand-built neighborhood is the
// equivalent "uniform rightward motion" case with enough support to
// exercise the full accept path.
func seedUniformPlane(t *testing.T, mem *tsmem.Memory, x0, y0 int, t0 int64, a float32) {
	t.Helper()
	for _, dx := range []int{-1, -2} {
		for dy := -2; dy <= 2; dy++ {
			dt := int64(a * float32(-dx) * 1e6)
			mem.Set(x0+dx, y0+dy, true, t0-dt)
		}
	}
}

func TestUniformMotionAccepts(t *testing.T) {
	mem := tsmem.New(sensorSize, sensorSize)
	umap := undistort.Identity(sensorSize, sensorSize)
	k := kernel.New(2)
	x0, y0, t0 := 10, 10, int64(1_000_000)

	const a = float32(0.01) // yields u = 1/a = 100 px/s
	seedUniformPlane(t, mem, x0, y0, t0, a)

	f := New()
	cfg := Config{
		DtMax:    50_000,
		VMax:     1000,
		NMin:     8,
		NReject:  0,
		MaxNRMSE: 0.3,
		Goodness: NMSE,
	}
	res := f.Fit(x0, y0, t0, true, mem, k, umap, sensorSize, sensorSize, cfg)
	require.Equal(t, event.Accepted, res.Reject)
	assert.InDelta(t, 100.0, res.U, 1.0)
	assert.InDelta(t, 0.0, res.V, 1.0)
}

func TestEdgePixelsAlwaysReject(t *testing.T) {
	mem := tsmem.New(sensorSize, sensorSize)
	umap := undistort.Identity(sensorSize, sensorSize)
	k := kernel.New(2)
	f := New()
	cfg := Config{DtMax: 50_000, VMax: 1000, NMin: 1, MaxNRMSE: 0.3}

	cases := [][2]int{{0, 5}, {sensorSize - 1, 5}, {5, 0}, {5, sensorSize - 1}}
	for _, c := range cases {
		res := f.Fit(c[0], c[1], 1000, true, mem, k, umap, sensorSize, sensorSize, cfg)
		assert.Equal(t, event.InsufficientSupport, res.Reject)
	}
}

func TestColinearNeighborsAreSingular(t *testing.T) {
	// All causal support lies on one row (dy=0 throughout), so the
	// normal-equation covariance collapses to rank 1 and D == 0 exactly.
	mem := tsmem.New(sensorSize, sensorSize)
	umap := undistort.Identity(sensorSize, sensorSize)
	k := kernel.New(2)
	x0, y0 := 4, 5
	mem.Set(x0-1, y0, true, 900)
	mem.Set(x0-2, y0, true, 800)

	f := New()
	cfg := Config{DtMax: 50_000, VMax: 1000, NMin: 1, MaxNRMSE: 0.3}
	res := f.Fit(x0, y0, 1000, true, mem, k, umap, sensorSize, sensorSize, cfg)
	assert.Equal(t, event.SingularSystem, res.Reject)
}

func TestOutlierRejectionRecoversCleanPlane(t *testing.T) {
	mem := tsmem.New(sensorSize, sensorSize)
	umap := undistort.Identity(sensorSize, sensorSize)
	k := kernel.New(3) // dx=3 so a dx=3 offset is available for the outlier
	x0, y0, t0 := 10, 10, int64(1_000_000)

	const a = float32(0.01)
	seedUniformPlane(t, mem, x0, y0, t0, a)
	// Anomalous 11th neighbor: wildly inconsistent with the fitted plane.
	mem.Set(x0+3, y0, true, t0-100_000)

	f := New()
	cfg := Config{
		DtMax:    200_000,
		VMax:     1000,
		NMin:     8,
		NReject:  2,
		MaxNRMSE: 0.05,
		Goodness: NMSE,
	}
	res := f.Fit(x0, y0, t0, true, mem, k, umap, sensorSize, sensorSize, cfg)
	require.Equal(t, event.Accepted, res.Reject)
	assert.InDelta(t, 100.0, res.U, 1.0)
	assert.InDelta(t, 0.0, res.V, 1.0)
}

func TestInsufficientSupportRejectsWithoutCrashing(t *testing.T) {
	mem := tsmem.New(sensorSize, sensorSize)
	umap := undistort.Identity(sensorSize, sensorSize)
	k := kernel.New(2)
	f := New()
	cfg := Config{DtMax: 50_000, VMax: 1000, NMin: 8, MaxNRMSE: 0.3}
	res := f.Fit(10, 10, 1000, true, mem, k, umap, sensorSize, sensorSize, cfg)
	assert.Equal(t, event.InsufficientSupport, res.Reject)
}
