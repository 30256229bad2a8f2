// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package event defines the AER event data model shared by every stage of
// the flow pipeline: the raw (x, y, t, polarity) tuple delivered by the
// sensor, and the same record after it has optionally been annotated with
// an optical-flow estimate.
package event

import "fmt"

// Polarity is the sign of a pixel's brightness change.
type Polarity uint8

const (
	// OFF marks a brightness decrease.
	OFF Polarity = 0
	// ON marks a brightness increase.
	ON Polarity = 1
)

// String implements fmt.Stringer.
func (p Polarity) String() string {
	if p == ON {
		return "ON"
	}
	return "OFF"
}

// Raw is the wire-level record the sensor driver delivers: a pixel
// coordinate, a monotonically non-decreasing microsecond timestamp, and a
// polarity. Within one packet, T is non-decreasing across Raw values.
type Raw struct {
	X int
	Y int
	T int64 // microseconds
	P Polarity
}

// Rejection is the reason the plane fitter declined to produce a flow
// estimate for an event. The zero value, Accepted, is not a rejection.
type Rejection uint8

const (
	// Accepted means the fitter produced a usable (u, v).
	Accepted Rejection = iota
	// InsufficientSupport means fewer than nMin causal neighbors survived
	// gathering, truncation, or outlier rejection.
	InsufficientSupport
	// SingularSystem means the 2x2 normal-equation determinant was within
	// epsilon of zero.
	SingularSystem
	// VelocityOutOfRange means the extracted speed exceeded vMax.
	VelocityOutOfRange
	// NotANumber means a or b produced a non-finite u or v.
	NotANumber
)

// String implements fmt.Stringer.
func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case InsufficientSupport:
		return "InsufficientSupport"
	case SingularSystem:
		return "SingularSystem"
	case VelocityOutOfRange:
		return "VelocityOutOfRange"
	case NotANumber:
		return "NotANumber"
	default:
		return "Unknown"
	}
}

// Event is a Raw event after ingress, mutated at most once by flow
// estimation. HasFlow is false until a plane fit succeeds; it is also
// cleared (but the event is preserved) by the regularization filter.
type Event struct {
	Raw

	U, V     float32 // pixels/second
	Xu, Yu   float32 // undistorted coordinates
	HasFlow  bool
}

// GoString implements fmt.GoStringer, mirroring the teacher's convention of
// a debug-oriented struct dump on wire-format types.
func (e Event) GoString() string {
	if !e.HasFlow {
		return fmt.Sprintf("event.Event{x:%d y:%d t:%d p:%s}", e.X, e.Y, e.T, e.P)
	}
	return fmt.Sprintf("event.Event{x:%d y:%d t:%d p:%s u:%.2f v:%.2f}", e.X, e.Y, e.T, e.P, e.U, e.V)
}
