// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package planefit implements the plane fitter: incremental least-squares
// plane fitting over a causal neighborhood of recent timestamps, refined
// by iterative outlier rejection.
//
// Grounded on flowAdaptive.c (R²-based goodness and its outlier-rejection
// loop) and flowBenosman2014.c (the NMSE-based goodness family) from the
// original tudelft/caer opticflow module. All sums are kept in float32 to
// match the original's numeric precision, using github.com/chewxy/math32
// for the scalar math the stdlib only offers in float64.
package planefit

import (
	"github.com/chewxy/math32"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/kernel"
	"github.com/inivation/dvsflow/tsmem"
	"github.com/inivation/dvsflow/undistort"
)

// singularEpsilon is the determinant threshold below which the 2x2 normal
// system is declared singular.
const singularEpsilon = 1e-10

// GoodnessMode selects which fit-quality gate accept/reject decisions use.
// NMSE is the default; RSquared is the alternate criterion the original
// flowAdaptive.c computes from the same accumulators.
type GoodnessMode uint8

const (
	// NMSE gates on normalized mean-squared residual.
	NMSE GoodnessMode = iota
	// RSquared gates on the coefficient of determination.
	RSquared
)

// Config is an immutable-during-one-fit snapshot of the tunable fitter
// parameters. Live values live as atomics in pipeline.Pipeline; callers
// read them into a Config once per event.
type Config struct {
	DtMax        int64   // microseconds; oldest neighbor timestamp admitted
	VMax         float32 // px/s; reject speeds above this
	NMin         uint32  // minimum retained neighbors for a fit
	NReject      uint32  // outlier-rejection iterations
	MaxNRMSE     float32 // NMSE goodness threshold
	MinRSquared  float32 // R² goodness threshold (RSquared mode only)
	DtStopFactor float32 // support-truncation multiplier (AdaptiveCutoff)

	Goodness       GoodnessMode
	AdaptiveCutoff bool // enable step-2 support truncation
}

// Result is either a velocity estimate (Reject == event.Accepted) or a
// rejection with no velocity fields populated.
type Result struct {
	U, V   float32
	Xu, Yu float32
	Reject event.Rejection
}

// Rejected builds a rejection Result for the given reason.
func Rejected(reason event.Rejection) Result {
	return Result{Reject: reason}
}

// candidate is one causal neighbor surviving gather, already transformed
// into undistorted-plane coordinates (step 3 is folded into gathering so
// that step 2's linear-independence check, which needs (dxu, dyu), can run
// without a second pass).
type candidate struct {
	dt       int64
	dxu, dyu float32
	tau      float32
}

// Fitter holds reusable per-event scratch state so that Fit never
// allocates on the heap in steady state, in place of the original C
// source's stack-allocated fixed-size neighbor array.
type Fitter struct {
	scratch []candidate
}

// New returns an empty Fitter.
func New() *Fitter {
	return &Fitter{}
}

func (f *Fitter) ensureCap(n int) {
	if cap(f.scratch) < n {
		f.scratch = make([]candidate, 0, n)
	} else {
		f.scratch = f.scratch[:0]
	}
}

// Fit runs the full incremental plane-fit algorithm for a triggering event
// at (x, y, t) on the given polarity's timestamp grid. w, h are the sensor
// dimensions, needed for the edge policy.
func (f *Fitter) Fit(x, y int, t int64, onGrid bool, mem *tsmem.Memory, k *kernel.Kernel, umap *undistort.Map, w, h int, cfg Config) Result {
	// Edge policy: plane fits at sensor borders are unreliable.
	if x == 0 || x == w-1 || y == 0 || y == h-1 {
		return Rejected(event.InsufficientSupport)
	}

	neighbors := k.Neighbors()
	f.ensureCap(len(neighbors))

	xu0 := umap.Ux(x, y)
	yu0 := umap.Uy(x, y)

	// Step 1 + 3: neighborhood gather and coordinate transform, kept
	// sorted ascending by dt via insertion sort (K is small enough that
	// this beats a real sort's overhead, and it is exactly what the
	// original C source does).
	for _, off := range neighbors {
		nx, ny := x+int(off.DX), y+int(off.DY)
		tn := mem.Get(nx, ny, onGrid)
		if tn == 0 {
			continue
		}
		dt := t - tn
		if dt < 0 || dt > cfg.DtMax {
			continue
		}
		c := candidate{
			dt:  dt,
			dxu: umap.Ux(nx, ny) - xu0,
			dyu: umap.Uy(nx, ny) - yu0,
			tau: -float32(dt) / 1e6,
		}
		f.scratch = append(f.scratch, c)
		for i := len(f.scratch) - 1; i > 0 && f.scratch[i-1].dt > f.scratch[i].dt; i-- {
			f.scratch[i-1], f.scratch[i] = f.scratch[i], f.scratch[i-1]
		}
	}

	retained := f.scratch

	// Step 2: adaptive cutoff (advanced variant).
	if cfg.AdaptiveCutoff && len(retained) > 1 {
		leadIdx := -1
		for i := 1; i < len(retained); i++ {
			det := retained[0].dxu*retained[i].dyu - retained[i].dxu*retained[0].dyu
			if det != 0 {
				leadIdx = i
				break
			}
		}
		if leadIdx > 0 {
			dtLead := float32(retained[leadIdx].dt)
			cut := len(retained)
			for j := 1; j < len(retained); j++ {
				if float32(retained[j].dt-retained[j-1].dt) > cfg.DtStopFactor*dtLead {
					cut = j
					break
				}
			}
			retained = retained[:cut]
		}
	}

	if uint32(len(retained)) < cfg.NMin {
		return Rejected(event.InsufficientSupport)
	}

	// Step 4: accumulate normal-equation sums.
	var sxx, syy, sxy, sxt, syt, st, st2 float32
	n := len(retained)
	for i := range retained {
		c := &retained[i]
		sxx += c.dxu * c.dxu
		syy += c.dyu * c.dyu
		sxy += c.dxu * c.dyu
		sxt += c.dxu * c.tau
		syt += c.dyu * c.tau
		st += c.tau
		st2 += c.tau * c.tau
	}

	// Step 5: solve.
	a, b, ok := solve(sxx, syy, sxy, sxt, syt)
	if !ok {
		return Rejected(event.SingularSystem)
	}

	// Step 6: goodness.
	good := goodness(cfg, st, st2, a, b, sxt, syt, n)

	// Step 7: outlier rejection, up to nReject iterations.
	rejections := uint32(0)
	for !good && rejections < cfg.NReject {
		worst, worstMag := -1, float32(-1)
		for i := range retained {
			c := &retained[i]
			mag := math32.Abs(a*c.dxu + b*c.dyu + c.tau)
			if mag > worstMag {
				worstMag, worst = mag, i
			}
		}
		if worst < 0 {
			return Rejected(event.InsufficientSupport)
		}
		c := retained[worst]
		sxx -= c.dxu * c.dxu
		syy -= c.dyu * c.dyu
		sxy -= c.dxu * c.dyu
		sxt -= c.dxu * c.tau
		syt -= c.dyu * c.tau
		st -= c.tau
		st2 -= c.tau * c.tau
		retained = append(retained[:worst], retained[worst+1:]...)
		n--
		rejections++

		if uint32(n) < cfg.NMin {
			return Rejected(event.InsufficientSupport)
		}
		a, b, ok = solve(sxx, syy, sxy, sxt, syt)
		if !ok {
			return Rejected(event.SingularSystem)
		}
		good = goodness(cfg, st, st2, a, b, sxt, syt, n)
	}
	if !good {
		return Rejected(event.InsufficientSupport)
	}

	// Step 8: velocity extraction.
	denom := a*a + b*b
	u := a / denom
	v := b / denom
	if math32.IsNaN(u) || math32.IsNaN(v) || math32.IsInf(u, 0) || math32.IsInf(v, 0) {
		return Rejected(event.NotANumber)
	}
	if math32.Hypot(u, v) > cfg.VMax {
		return Rejected(event.VelocityOutOfRange)
	}

	return Result{U: u, V: v, Xu: xu0, Yu: yu0, Reject: event.Accepted}
}

func solve(sxx, syy, sxy, sxt, syt float32) (a, b float32, ok bool) {
	d := sxx*syy - sxy*sxy
	if math32.Abs(d) < singularEpsilon {
		return 0, 0, false
	}
	a = (syy*sxt - sxy*syt) / d
	b = (sxx*syt - sxy*sxt) / d
	return a, b, true
}

func goodness(cfg Config, st, st2, a, b, sxt, syt float32, n int) bool {
	ssr := st2 - a*sxt - b*syt
	switch cfg.Goodness {
	case RSquared:
		mean := st / float32(n)
		sst := st2 - float32(n)*mean*mean
		if math32.Abs(sst) < singularEpsilon {
			return false
		}
		r2 := 1 - ssr/sst
		return r2 >= cfg.MinRSquared
	default:
		nmse := ssr * float32(n) / (st*st + 1e-12)
		return nmse <= cfg.MaxNRMSE*cfg.MaxNRMSE
	}
}
