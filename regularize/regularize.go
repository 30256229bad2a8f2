// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package regularize implements the neighborhood regularization filter, an
// optional collaborator the flow pipeline may bypass. It gates an
// already-annotated event on whether a recent neighboring flow estimate
// agrees with it in magnitude and direction, and otherwise clears HasFlow
// while preserving the event.
//
// Grounded on flowRegularizationFilter.c from the original C source: a
// spatial-window, temporal-window scan of a per-pixel flow-event history,
// checking a "flow direction" criterion, a magnitude-agreement factor, and
// an angle-agreement threshold. Two independent threshold knobs
// (MagnitudeFactor, AngleFactorDeg) are used here where the original
// reused a single maxSpeedFactor field for both the magnitude and angle
// checks, since they are separate criteria ("within a factor" and "within
// an angle"); the original's apparent copy-paste is not reproduced here.
package regularize

import (
	"github.com/chewxy/math32"

	"github.com/inivation/dvsflow/event"
)

// Config tunes the filter. Enabled defaults to false, bypassing the
// filter entirely.
type Config struct {
	Enabled         bool
	SpatialWindow   int     // neighbors within +/- SpatialWindow/2 in x and y
	TemporalWindow  int64   // microseconds; neighbor history older than this is ignored
	MagnitudeFactor float32 // agreement factor on |flow|
	AngleFactorDeg  float32 // agreement threshold on direction, degrees
	HistoryDepth    int     // entries retained per pixel
}

// History is a per-pixel ring of recent flow-annotated events, newest
// first, used to look up a neighbor's last known flow vector.
type History struct {
	w, h, depth int
	entries     []event.Event // w*h*depth, row-major then depth-major
	filled      []int         // how many valid entries per pixel
}

// NewHistory allocates a History for a w x h sensor retaining depth
// entries per pixel.
func NewHistory(w, h, depth int) *History {
	if depth <= 0 {
		depth = 1
	}
	return &History{
		w: w, h: h, depth: depth,
		entries: make([]event.Event, w*h*depth),
		filled:  make([]int, w*h),
	}
}

func (h *History) base(x, y int) int {
	return (y*h.w + x) * h.depth
}

// Add records ev as the newest history entry at its own pixel.
func (h *History) Add(ev event.Event) {
	x, y := ev.X, ev.Y
	if x < 0 || x >= h.w || y < 0 || y >= h.h {
		return
	}
	idx := y*h.w + x
	base := h.base(x, y)
	// Shift older entries back, newest at offset 0.
	for i := h.depth - 1; i > 0; i-- {
		h.entries[base+i] = h.entries[base+i-1]
	}
	h.entries[base] = ev
	if h.filled[idx] < h.depth {
		h.filled[idx]++
	}
}

// At returns the i-th most recent entry (0 = newest) at (x, y), or false
// if fewer than i+1 entries have ever been recorded there.
func (h *History) At(x, y, i int) (event.Event, bool) {
	if x < 0 || x >= h.w || y < 0 || y >= h.h {
		return event.Event{}, false
	}
	idx := y*h.w + x
	if i >= h.filled[idx] {
		return event.Event{}, false
	}
	return h.entries[h.base(x, y)+i], true
}

// Filter applies the regularization gate to ev in place, consulting hist
// for neighboring flow history. When cfg.Enabled is false, ev is
// unchanged. When enabled and no agreeing neighbor is found, ev.HasFlow is
// cleared but the event is otherwise preserved. The caller is responsible
// for recording ev into hist (typically after this call) so later events
// can use it as a neighbor.
func Filter(ev *event.Event, hist *History, cfg Config) {
	if !cfg.Enabled || !ev.HasFlow {
		return
	}

	magnitude := math32.Hypot(ev.U, ev.V)
	angle := math32.Atan2(ev.V, ev.U)
	uHat := math32.Cos(angle)
	vHat := math32.Sin(angle)
	rejectMagDiff := magnitude * cfg.MagnitudeFactor
	rejectAngleDiff := cfg.AngleFactorDeg * (math32.Pi / 180)

	half := cfg.SpatialWindow / 2
	xMin, xMax := ev.X-half, ev.X+half
	yMin, yMax := ev.Y-half, ev.Y+half

	found := false
	for xx := xMin; xx <= xMax; xx++ {
		for yy := yMin; yy <= yMax; yy++ {
			if xx == ev.X && yy == ev.Y {
				continue
			}
			for i := 0; i < hist.depth; i++ {
				n, ok := hist.At(xx, yy, i)
				if !ok || !n.HasFlow {
					continue
				}
				if ev.T-n.T > cfg.TemporalWindow {
					break // history at this pixel only gets older from here
				}
				dx := float32(xx - ev.X)
				dy := float32(yy - ev.Y)
				if uHat*dx+vHat*dy > 0 {
					break // neighbor lies ahead of the flow direction
				}
				nMag := math32.Hypot(n.U, n.V)
				if math32.Abs(magnitude-nMag) > rejectMagDiff {
					break
				}
				nAngle := math32.Atan2(n.V, n.U)
				if angularDistance(angle, nAngle) > rejectAngleDiff {
					break
				}
				found = true
				break
			}
			if found {
				break
			}
		}
		if found {
			break
		}
	}

	if !found {
		ev.HasFlow = false
	}
}

// angularDistance returns the absolute difference between two angles
// (radians), wrapped into [0, pi].
func angularDistance(a, b float32) float32 {
	d := a - b
	for d > math32.Pi {
		d -= 2 * math32.Pi
	}
	for d < -math32.Pi {
		d += 2 * math32.Pi
	}
	return math32.Abs(d)
}
