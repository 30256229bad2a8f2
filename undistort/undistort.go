// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package undistort implements the undistortion map: a read-only pixel ->
// undistorted-pixel lookup loaded once at startup from a calibration
// table. The original C implementation's fixed-size DVS128 lookup
// (dvs128Calibration.h) is generalized here to an arbitrary W x H sensor.
package undistort

// Map is a pair of W x H float32 arrays giving the undistorted coordinate
// of each integer pixel. Values never change after New returns.
type Map struct {
	w, h int
	ux   []float32
	uy   []float32
}

// New builds a Map from caller-supplied undistorted-coordinate arrays, both
// laid out row-major with stride w. Calibration acquisition itself (the
// sensor.Calibration collaborator) is out of scope; New only validates
// shape.
func New(w, h int, ux, uy []float32) *Map {
	if len(ux) != w*h || len(uy) != w*h {
		panic("undistort: array length does not match w*h")
	}
	return &Map{w: w, h: h, ux: ux, uy: uy}
}

// Identity builds a Map whose undistorted coordinate equals the input
// pixel coordinate — useful for tests and for sensors without a
// calibration table.
func Identity(w, h int) *Map {
	ux := make([]float32, w*h)
	uy := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ux[y*w+x] = float32(x)
			uy[y*w+x] = float32(y)
		}
	}
	return &Map{w: w, h: h, ux: ux, uy: uy}
}

// Ux returns the undistorted x coordinate of (x, y), or the image center's
// for any out-of-range input.
func (m *Map) Ux(x, y int) float32 {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return float32(m.w) / 2
	}
	return m.ux[y*m.w+x]
}

// Uy returns the undistorted y coordinate of (x, y), or the image center's
// for any out-of-range input.
func (m *Map) Uy(x, y int) float32 {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return float32(m.h) / 2
	}
	return m.uy[y*m.w+x]
}
