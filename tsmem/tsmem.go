// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tsmem implements the timestamp memory: a per-polarity dense
// grid of the last admitted event timestamp at each pixel.
//
// Only the flow pipeline mutates a Memory; the plane fitter only reads it.
// Both assumptions let Memory itself skip all synchronization.
package tsmem

// Memory holds two W x H grids of int64 timestamps, one per polarity,
// initialized to zero. A zero cell means "no admitted event at that pixel
// for that polarity yet".
type Memory struct {
	w, h int
	off  []int64 // OFF grid
	on   []int64 // ON grid
}

// New allocates a Memory for a sensor of the given width and height.
func New(w, h int) *Memory {
	return &Memory{
		w:   w,
		h:   h,
		off: make([]int64, w*h),
		on:  make([]int64, w*h),
	}
}

// Width returns the grid width.
func (m *Memory) Width() int { return m.w }

// Height returns the grid height.
func (m *Memory) Height() int { return m.h }

func (m *Memory) grid(onGrid bool) []int64 {
	if onGrid {
		return m.on
	}
	return m.off
}

// Get returns the last timestamp recorded at (x, y) for the given
// polarity, or zero for any out-of-bounds coordinate. Bounds-tolerant
// reads let the search-kernel iterator in planefit skip edge tests.
func (m *Memory) Get(x, y int, on bool) int64 {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return 0
	}
	return m.grid(on)[y*m.w+x]
}

// Set records t as the latest timestamp at (x, y) for the given polarity.
// Out-of-bounds coordinates are a no-op. Callers must only invoke Set after
// an event has cleared the admission gate's refractory stage.
func (m *Memory) Set(x, y int, on bool, t int64) {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return
	}
	m.grid(on)[y*m.w+x] = t
}
