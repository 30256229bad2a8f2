// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pipeline implements the flow pipeline: the per-event orchestrator
// that runs on the thread delivering events from the sensor driver. It owns
// the timestamp grid, the rate estimator, the raw-log handle, and the
// live-reconfigurable scalar parameters, and pushes annotated events to the
// output ring.
//
// Grounded on flowAdaptiveComputeFlow in the original C source for the
// per-event step ordering (a)-(h); the live-parameter atomics and the
// exclusive kernel-regeneration lock are expressed with sync/atomic and
// sync.RWMutex in the idiom google-periph uses for its own
// concurrency-sensitive device state (e.g. conn/i2c/i2creg's registry
// lock).
package pipeline

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/gate"
	"github.com/inivation/dvsflow/kernel"
	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/planefit"
	"github.com/inivation/dvsflow/ratefilter"
	"github.com/inivation/dvsflow/regularize"
	"github.com/inivation/dvsflow/ring"
	"github.com/inivation/dvsflow/sink"
	"github.com/inivation/dvsflow/tsmem"
	"github.com/inivation/dvsflow/undistort"
)

// Params is the initial snapshot of every live-reconfigurable scalar in
// the configuration surface.
type Params struct {
	RefractoryPeriod int64
	DtMax            int64
	VMax             float32
	Dx               uint8
	NReject          uint32
	MaxNRMSE         float32
	DtStopFactor     float32
	NMin             uint32
	RateEnabled      bool
	RateSetpoint     float32
	RateTau          float32
	Goodness         planefit.GoodnessMode
	AdaptiveCutoff   bool
}

// rawLogger is the subset of rawlog.Writer the pipeline needs; kept as an
// interface so tests can supply a no-op stand-in without touching disk.
type rawLogger interface {
	WriteEvent(event.Raw) error
}

// Pipeline is the flow pipeline. Exactly one goroutine calls ProcessPacket;
// live parameter updates may arrive concurrently from any other goroutine.
type Pipeline struct {
	w, h int

	kernelMu sync.RWMutex
	kern     *kernel.Kernel

	mem    *tsmem.Memory
	umap   *undistort.Map
	fitter *planefit.Fitter
	gate   *gate.Gate
	rate   *ratefilter.Estimator
	hist   *regularize.History
	regCfg regularize.Config

	out    *ring.Ring
	raw    rawLogger
	sinkW  *sink.Worker
	metrics *metrics.Registry
	log    zerolog.Logger

	refractoryPeriod atomic.Int64
	dtMax            atomic.Int64
	vMaxBits         atomic.Uint32
	nReject          atomic.Uint32
	maxNRMSEBits     atomic.Uint32
	dtStopFactorBits atomic.Uint32
	nMin             atomic.Uint32
	rateEnabled      atomic.Bool
	rateSetpointBits atomic.Uint32
	rateTauBits      atomic.Uint32
	goodness         atomic.Uint32
	adaptiveCutoff   atomic.Bool

	lastAcceptedT int64 // T1-only, no synchronization needed

	startOnce    sync.Once
	monotonicRef time.Time
}

// New constructs a Pipeline for a w x h sensor. umap may be undistort.Identity
// if no calibration is available. raw may be nil to disable raw logging.
func New(w, h int, umap *undistort.Map, out *ring.Ring, raw rawLogger, sinkW *sink.Worker, m *metrics.Registry, log zerolog.Logger, p Params) *Pipeline {
	pl := &Pipeline{
		w: w, h: h,
		kern:    kernel.New(p.Dx),
		mem:     tsmem.New(w, h),
		umap:    umap,
		fitter:  planefit.New(),
		gate:    gate.New(m),
		rate:    ratefilter.New(p.RateTau),
		hist:    regularize.NewHistory(w, h, 4),
		out:     out,
		raw:     raw,
		sinkW:   sinkW,
		metrics: m,
		log:     log,
	}
	pl.refractoryPeriod.Store(p.RefractoryPeriod)
	pl.dtMax.Store(p.DtMax)
	pl.vMaxBits.Store(math.Float32bits(p.VMax))
	pl.nReject.Store(p.NReject)
	pl.maxNRMSEBits.Store(math.Float32bits(p.MaxNRMSE))
	pl.dtStopFactorBits.Store(math.Float32bits(p.DtStopFactor))
	pl.nMin.Store(p.NMin)
	pl.rateEnabled.Store(p.RateEnabled)
	pl.rateSetpointBits.Store(math.Float32bits(p.RateSetpoint))
	pl.rateTauBits.Store(math.Float32bits(p.RateTau))
	pl.goodness.Store(uint32(p.Goodness))
	pl.adaptiveCutoff.Store(p.AdaptiveCutoff)
	return pl
}

// SetRegularization configures the optional regularization filter; zero
// value keeps it bypassed.
func (p *Pipeline) SetRegularization(cfg regularize.Config) {
	p.regCfg = cfg
	if cfg.HistoryDepth > 0 {
		p.hist = regularize.NewHistory(p.w, p.h, cfg.HistoryDepth)
	}
}

func f32bits(v *atomic.Uint32) float32 { return math.Float32frombits(v.Load()) }

// --- config.Sink implementation (live parameter updates from T3) ---

func (p *Pipeline) SetRefractoryPeriod(v int64)   { p.refractoryPeriod.Store(v) }
func (p *Pipeline) SetDtMax(v int64)              { p.dtMax.Store(v) }
func (p *Pipeline) SetVMax(v float32)             { p.vMaxBits.Store(math.Float32bits(v)) }
func (p *Pipeline) SetNReject(v uint32)           { p.nReject.Store(v) }
func (p *Pipeline) SetMaxNRMSE(v float32)         { p.maxNRMSEBits.Store(math.Float32bits(v)) }
func (p *Pipeline) SetDtStopFactor(v float32)     { p.dtStopFactorBits.Store(math.Float32bits(v)) }
func (p *Pipeline) SetNMin(v uint32)              { p.nMin.Store(v) }
func (p *Pipeline) SetRateEnabled(v bool)         { p.rateEnabled.Store(v) }
func (p *Pipeline) SetRateSetpoint(v float32)     { p.rateSetpointBits.Store(math.Float32bits(v)) }
func (p *Pipeline) SetRateTau(v float32) {
	p.rateTauBits.Store(math.Float32bits(v))
	p.rate.SetTau(v)
}

// SetKernelHalfSize regenerates the search kernel under the one exclusive
// lock the core ever takes.
func (p *Pipeline) SetKernelHalfSize(dx uint8) error {
	nk := kernel.New(dx)
	p.kernelMu.Lock()
	p.kern = nk
	p.kernelMu.Unlock()
	return nil
}

func (p *Pipeline) snapshotConfig() (gate.Config, planefit.Config) {
	gc := gate.Config{
		RefractoryPeriod: p.refractoryPeriod.Load(),
		RateEnabled:      p.rateEnabled.Load(),
		RateSetpoint:     f32bits(&p.rateSetpointBits),
	}
	fc := planefit.Config{
		DtMax:          p.dtMax.Load(),
		VMax:           f32bits(&p.vMaxBits),
		NMin:           p.nMin.Load(),
		NReject:        p.nReject.Load(),
		MaxNRMSE:       f32bits(&p.maxNRMSEBits),
		DtStopFactor:   f32bits(&p.dtStopFactorBits),
		Goodness:       planefit.GoodnessMode(p.goodness.Load()),
		AdaptiveCutoff: p.adaptiveCutoff.Load(),
	}
	return gc, fc
}

// ProcessEvent runs steps (a)-(h) of the per-event flow computation for
// one raw event.
func (p *Pipeline) ProcessEvent(r event.Raw) {
	if p.raw != nil {
		p.raw.WriteEvent(r) // (a) always, regardless of admission
	}

	onGrid := r.P == event.ON // (b)
	gc, fc := p.snapshotConfig()

	currentRate := p.rate.Rate()
	if !p.gate.Admit(r.X, r.Y, r.T, onGrid, p.mem, currentRate, gc) { // (c)
		return
	}

	p.mem.Set(r.X, r.Y, onGrid, r.T) // (d)

	p.kernelMu.RLock()
	kern := p.kern
	res := p.fitter.Fit(r.X, r.Y, r.T, onGrid, p.mem, kern, p.umap, p.w, p.h, fc) // (e)
	p.kernelMu.RUnlock()

	if p.metrics != nil {
		p.metrics.ObserveRejection(res.Reject)
	}
	if res.Reject != event.Accepted {
		return
	}

	ev := event.Event{Raw: r, U: res.U, V: res.V, Xu: res.Xu, Yu: res.Yu, HasFlow: true} // (f)

	if p.lastAcceptedT != 0 {
		p.rate.UpdateFromTimestamps(p.lastAcceptedT, r.T) // (g)
	}
	p.lastAcceptedT = r.T
	if p.metrics != nil {
		p.metrics.FlowRate.Set(float64(p.rate.Rate()))
	}

	if p.regCfg.Enabled {
		regularize.Filter(&ev, p.hist, p.regCfg)
		p.hist.Add(ev)
	}

	p.out.TryPush(ev) // (h); TryPush itself counts the drop on queue-full
}

// ProcessPacket runs ProcessEvent over every raw event in a packet
// (timestamps are non-decreasing within a packet), then writes one
// timing-CSV row via the sink worker.
func (p *Pipeline) ProcessPacket(packet []event.Raw) {
	p.startOnce.Do(func() { p.monotonicRef = time.Now() })

	for _, r := range packet {
		p.ProcessEvent(r)
	}

	if len(packet) == 0 || p.sinkW == nil {
		return
	}
	last := packet[len(packet)-1]
	delay := time.Since(p.monotonicRef).Microseconds() - last.T
	p.sinkW.WriteTimingRow(sink.TimingRow{
		TLast:    last.T,
		DelayUs:  delay,
		FlowRate: p.rate.Rate(),
	})
}
