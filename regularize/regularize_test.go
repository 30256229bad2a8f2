// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regularize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inivation/dvsflow/event"
)

func TestDisabledPassesThroughUnchanged(t *testing.T) {
	hist := NewHistory(32, 32, 4)
	ev := event.Event{Raw: event.Raw{X: 5, Y: 5, T: 1000}, U: 10, V: 0, HasFlow: true}
	Filter(&ev, hist, Config{Enabled: false})
	assert.True(t, ev.HasFlow)
	assert.Equal(t, float32(10), ev.U)
}

func TestAgreeingNeighborKeepsFlow(t *testing.T) {
	hist := NewHistory(32, 32, 4)
	neighbor := event.Event{Raw: event.Raw{X: 4, Y: 5, T: 900}, U: 10, V: 0, HasFlow: true}
	hist.Add(neighbor)

	ev := event.Event{Raw: event.Raw{X: 5, Y: 5, T: 1000}, U: 10, V: 0, HasFlow: true}
	cfg := Config{Enabled: true, SpatialWindow: 4, TemporalWindow: 1000, MagnitudeFactor: 0.5, AngleFactorDeg: 30}
	Filter(&ev, hist, cfg)
	assert.True(t, ev.HasFlow)
}

func TestNoNeighborClearsFlowButPreservesEvent(t *testing.T) {
	hist := NewHistory(32, 32, 4)
	ev := event.Event{Raw: event.Raw{X: 5, Y: 5, T: 1000}, U: 10, V: 0, HasFlow: true}
	cfg := Config{Enabled: true, SpatialWindow: 4, TemporalWindow: 1000, MagnitudeFactor: 0.5, AngleFactorDeg: 30}
	Filter(&ev, hist, cfg)
	assert.False(t, ev.HasFlow)
	assert.Equal(t, 5, ev.X)
	assert.Equal(t, 5, ev.Y)
}

func TestDisagreeingMagnitudeClearsFlow(t *testing.T) {
	hist := NewHistory(32, 32, 4)
	neighbor := event.Event{Raw: event.Raw{X: 4, Y: 5, T: 900}, U: 1000, V: 0, HasFlow: true}
	hist.Add(neighbor)

	ev := event.Event{Raw: event.Raw{X: 5, Y: 5, T: 1000}, U: 10, V: 0, HasFlow: true}
	cfg := Config{Enabled: true, SpatialWindow: 4, TemporalWindow: 1000, MagnitudeFactor: 0.1, AngleFactorDeg: 30}
	Filter(&ev, hist, cfg)
	assert.False(t, ev.HasFlow)
}
