// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package kernel implements the search kernel: the precomputed set of
// relative pixel offsets the plane fitter scans around a triggering event.
package kernel

// Offset is one (dx, dy) relative-neighbor pair.
type Offset struct {
	DX, DY int8
}

// Kernel is the ordered, stable set of offsets for a given half-size. Its
// lifetime spans one configuration epoch: a caller changing dx builds a new
// Kernel and installs it, discarding the old one — the exclusive lock this
// swap requires lives in pipeline.Pipeline, not here, so Kernel itself
// stays a plain value.
type Kernel struct {
	offsets []Offset
}

// New builds the kernel for neighborhood half-size dx: every (dx, dy) with
// max(|dx|, |dy|) <= halfSize, excluding (0, 0). Size K = (2*halfSize+1)^2 - 1.
// Grounded on flowAdaptiveInitSearchKernels in the original C source, which
// builds the same window but in a single x-major, y-minor nested loop —
// reproduced here for iteration-order parity, since downstream code relies
// on a stable (if otherwise arbitrary) neighbor ordering.
func New(halfSize uint8) *Kernel {
	window := int(halfSize)*2 + 1
	size := window*window - 1
	offsets := make([]Offset, 0, size)
	h := int8(halfSize)
	for x := -h; x <= h; x++ {
		for y := -h; y <= h; y++ {
			if x == 0 && y == 0 {
				continue
			}
			offsets = append(offsets, Offset{DX: x, DY: y})
		}
	}
	return &Kernel{offsets: offsets}
}

// Neighbors returns the kernel's offsets in stable iteration order.
func (k *Kernel) Neighbors() []Offset {
	return k.offsets
}

// Size returns len(Neighbors()).
func (k *Kernel) Size() int {
	return len(k.offsets)
}
