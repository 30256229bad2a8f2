// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/ring"
	"github.com/inivation/dvsflow/undistort"
)

const (
	testW, testH = 64, 64
)

type fakeRawLogger struct {
	written []event.Raw
}

func (f *fakeRawLogger) WriteEvent(r event.Raw) error {
	f.written = append(f.written, r)
	return nil
}

func defaultParams() Params {
	return Params{
		RefractoryPeriod: 100000,
		DtMax:            2000000,
		VMax:             1000.0,
		Dx:               2,
		NReject:          2,
		MaxNRMSE:         0.3,
		DtStopFactor:     3.0,
		NMin:             8,
		RateTau:          0.01,
	}
}

func newTestPipeline(t *testing.T, raw *fakeRawLogger) (*Pipeline, *ring.Ring) {
	t.Helper()
	m := metrics.NewRegistry(prometheus.NewRegistry())
	r := ring.New(256, m)
	umap := undistort.Identity(testW, testH)
	var rl rawLogger
	if raw != nil {
		rl = raw
	}
	pl := New(testW, testH, umap, r, rl, nil, m, zerolog.Nop(), defaultParams())
	return pl, r
}

// TestRefractoryBlocksGridUpdateAndFlow checks that a second same-pixel
// same-polarity event inside the refractory period
// leaves the grid cell unchanged and produces no flow.
func TestRefractoryBlocksGridUpdateAndFlow(t *testing.T) {
	pl, r := newTestPipeline(t, nil)
	pl.SetRefractoryPeriod(100)
	pl.ProcessEvent(event.Raw{X: 10, Y: 10, T: 1000, P: event.ON})
	require.Equal(t, int64(1000), pl.mem.Get(10, 10, true))

	pl.ProcessEvent(event.Raw{X: 10, Y: 10, T: 1099, P: event.ON})
	assert.Equal(t, int64(1000), pl.mem.Get(10, 10, true))
	assert.Equal(t, 0, r.Len())
}

// TestRefractoryAdmitsPastWindow is the other half of the refractory
// check: with the same stream but a shorter refractory period, the second
// event is admitted and updates the grid.
func TestRefractoryAdmitsPastWindow(t *testing.T) {
	pl, _ := newTestPipeline(t, nil)
	pl.SetRefractoryPeriod(50)
	pl.ProcessEvent(event.Raw{X: 10, Y: 10, T: 1000, P: event.ON})
	pl.ProcessEvent(event.Raw{X: 10, Y: 10, T: 1099, P: event.ON})
	assert.Equal(t, int64(1099), pl.mem.Get(10, 10, true))
}

// TestAdmittedEventUpdatesGridToTimestamp checks that an admitted event
// updates only its own polarity's grid cell, to its own timestamp.
func TestAdmittedEventUpdatesGridToTimestamp(t *testing.T) {
	pl, _ := newTestPipeline(t, nil)
	pl.ProcessEvent(event.Raw{X: 20, Y: 20, T: 150000, P: event.OFF})
	assert.Equal(t, int64(150000), pl.mem.Get(20, 20, false))
	assert.Equal(t, int64(0), pl.mem.Get(20, 20, true))
}

// TestEdgeEventsNeverProduceFlow is the boundary behavior: x in {0, W-1} or
// y in {0, H-1} always reject.
func TestEdgeEventsNeverProduceFlow(t *testing.T) {
	pl, r := newTestPipeline(t, nil)
	pl.ProcessEvent(event.Raw{X: 0, Y: 30, T: 200000, P: event.ON})
	pl.ProcessEvent(event.Raw{X: testW - 1, Y: 30, T: 300000, P: event.ON})
	pl.ProcessEvent(event.Raw{X: 30, Y: 0, T: 400000, P: event.ON})
	pl.ProcessEvent(event.Raw{X: 30, Y: testH - 1, T: 500000, P: event.ON})
	assert.Equal(t, 0, r.Len())
}

// TestRawLogReceivesEveryEventRegardlessOfAdmission checks step (a) of
// ProcessEvent: the raw logger sees every event, admitted or not.
func TestRawLogReceivesEveryEventRegardlessOfAdmission(t *testing.T) {
	raw := &fakeRawLogger{}
	pl, _ := newTestPipeline(t, raw)
	pl.ProcessEvent(event.Raw{X: 5, Y: 5, T: 200000, P: event.ON}) // admitted
	pl.ProcessEvent(event.Raw{X: 5, Y: 5, T: 200001, P: event.ON}) // refractory-blocked
	assert.Len(t, raw.written, 2)
}

// TestInsufficientNeighborsNeverUpdatesRate checks that when the fitter
// rejects for lack of support, the rate estimator is untouched.
func TestInsufficientNeighborsNeverUpdatesRate(t *testing.T) {
	pl, _ := newTestPipeline(t, nil)
	before := pl.rate.Rate()
	// A single isolated event in an otherwise empty grid has zero causal
	// neighbors, well short of the default nMin=8. T is past the default
	// refractory period so the gate admits it through to the fitter.
	pl.ProcessEvent(event.Raw{X: 30, Y: 30, T: 200000, P: event.ON})
	assert.Equal(t, before, pl.rate.Rate())
}

// TestQueueFullReturnsNormallyAndCountsDrop checks the pipeline-facing half
// of ring overflow: pushing past ring capacity never panics, the ring
// stays at capacity, and every excess accepted flow is counted as a drop.
func TestQueueFullReturnsNormallyAndCountsDrop(t *testing.T) {
	m := metrics.NewRegistry(prometheus.NewRegistry())
	r := ring.New(4, m)
	umap := undistort.Identity(testW, testH)
	pl := New(testW, testH, umap, r, nil, nil, m, zerolog.Nop(), defaultParams())

	// A vertical edge over rows 28..32 moving right at 100 px/s (one column
	// every 10ms). Each pixel fires once, at or after t=100000, so the
	// default refractory period admits it (grid reads 0 for an untouched
	// cell). From column 22 on, rows 29..32 have at least nMin=8 causal
	// neighbors lying exactly on the plane, so 8 columns x 4 rows = 32
	// flows are accepted; the ring keeps 4 and drops the other 28.
	for x := 20; x < 30; x++ {
		for y := 28; y <= 32; y++ {
			pl.ProcessEvent(event.Raw{X: x, Y: y, T: 100000 + int64(x-20)*10000, P: event.ON})
		}
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, float64(28), testutil.ToFloat64(m.RingDrops))
}

func TestSetKernelHalfSizeRegeneratesWithoutPanicking(t *testing.T) {
	pl, _ := newTestPipeline(t, nil)
	require.NoError(t, pl.SetKernelHalfSize(1))
	pl.ProcessEvent(event.Raw{X: 30, Y: 30, T: 200000, P: event.ON})
	require.NoError(t, pl.SetKernelHalfSize(3))
	pl.ProcessEvent(event.Raw{X: 30, Y: 30, T: 500000, P: event.ON})
}

func TestProcessPacketHandlesEmptyPacket(t *testing.T) {
	pl, _ := newTestPipeline(t, nil)
	pl.ProcessPacket(nil)
	pl.ProcessPacket([]event.Raw{})
}
