// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ratefilter implements the rate estimator: a first-order IIR
// low-pass filter on the instantaneous inverse inter-flow interval.
// Grounded on flowAdaptiveUpdateRate in the original C source.
package ratefilter

import "github.com/chewxy/math32"

// Estimator tracks a single exponentially-smoothed rate. It is touched
// only by the flow pipeline's own thread and needs no synchronization of
// its own.
type Estimator struct {
	rate float32
	tau  float32
}

// New returns an Estimator with the given IIR time constant (seconds,
// rate/tau in the configuration surface, typical 0.01s).
func New(tau float32) *Estimator {
	return &Estimator{tau: tau}
}

// SetTau updates the time constant; it is one of the pipeline's
// atomically-swapped live parameters.
func (e *Estimator) SetTau(tau float32) {
	e.tau = tau
}

// Rate returns the current smoothed rate in Hz.
func (e *Estimator) Rate() float32 {
	return e.rate
}

// Update folds in a new accepted-flow interval dt (seconds, must be > 0)
// using rNew = 1/(dt+1e-5), alpha = min(dt/tau, 1), rate += alpha*(rNew-rate).
func (e *Estimator) Update(dt float32) {
	rNew := 1 / (dt + 1e-5)
	alpha := dt / e.tau
	if alpha > 1 {
		alpha = 1
	}
	e.rate += alpha * (rNew - e.rate)
}

// UpdateFromTimestamps is a convenience wrapper taking the previous and
// current acceptance timestamps in microseconds; it is a no-op if dt <= 0
// (non-causal or duplicate timestamps never update the rate).
func (e *Estimator) UpdateFromTimestamps(prevT, t int64) {
	dt := t - prevT
	if dt <= 0 {
		return
	}
	e.Update(float32(dt) / 1e6)
}

// IsFinite reports whether the current rate is a usable float32 value;
// exposed mainly for tests and metrics export sanity checks.
func (e *Estimator) IsFinite() bool {
	return !math32.IsNaN(e.rate) && !math32.IsInf(e.rate, 0)
}
