// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gate implements the admission gate: the refractory and
// adaptive-rate-limit stages applied before the plane fitter runs.
// Grounded on the refractory/rate block at the top of
// flowAdaptiveComputeFlow in the original C source.
package gate

import (
	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/tsmem"
)

// Config is a snapshot of the gate's tunable parameters for one admission
// decision.
type Config struct {
	RefractoryPeriod int64 // microseconds
	RateEnabled      bool
	RateSetpoint     float32 // 1/s
}

// Gate applies the two admission stages. It never mutates tsmem.Memory or
// the rate estimator: it only reads the current rate value, and leaves
// timestamp-grid writes to the flow pipeline.
type Gate struct {
	metrics *metrics.Registry
}

// New returns a Gate reporting drops through m.
func New(m *metrics.Registry) *Gate {
	return &Gate{metrics: m}
}

// Admit reports whether the event at (x, y, t) on the given polarity grid
// should proceed to the plane fitter. currentRate is the Rate Estimator's
// current value (read-only here).
func (g *Gate) Admit(x, y int, t int64, onGrid bool, mem *tsmem.Memory, currentRate float32, cfg Config) bool {
	if t-mem.Get(x, y, onGrid) < cfg.RefractoryPeriod {
		g.metrics.AdmissionDrops.Inc()
		return false
	}
	if cfg.RateEnabled && currentRate > cfg.RateSetpoint {
		g.metrics.AdmissionDrops.Inc()
		return false
	}
	return true
}
