// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics collects the pipeline's observables: per-reason fit
// rejections, admission drops, ring drops, rate gauge, and sink/raw-log
// capacity notices. None of these are errors — they are counted, never
// logged individually.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inivation/dvsflow/event"
)

// Registry bundles every dvsflow_* observable behind one struct so a
// pipeline can be constructed with metrics.NewRegistry() and passed around
// instead of relying on package-global state (the original C source's own
// globals — CamSeted, BiasesLoaded, static tstart/tend — are exactly what
// this re-expresses as owned, per-instance state).
type Registry struct {
	FitRejections   *prometheus.CounterVec
	AdmissionDrops  prometheus.Counter
	RingDrops       prometheus.Counter
	RingDepth       prometheus.Gauge
	FlowRate        prometheus.Gauge
	CSVCapReached   prometheus.Counter
	RawLogCapReached prometheus.Counter
	SinkDegraded    *prometheus.GaugeVec
}

// NewRegistry constructs a Registry and registers every metric with reg.
// Passing a fresh prometheus.NewRegistry() keeps tests hermetic; production
// callers typically pass prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		FitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dvsflow_fit_rejections_total",
			Help: "Plane-fit rejections by reason.",
		}, []string{"reason"}),
		AdmissionDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvsflow_admission_drops_total",
			Help: "Events dropped by the admission gate (refractory or adaptive rate limit).",
		}),
		RingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvsflow_ring_drops_total",
			Help: "Flow records dropped because the output ring was full.",
		}),
		RingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dvsflow_ring_depth",
			Help: "Current number of records queued in the output ring.",
		}),
		FlowRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dvsflow_flow_rate_hz",
			Help: "Current low-pass-filtered accepted-flow rate.",
		}),
		CSVCapReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvsflow_csv_cap_reached_total",
			Help: "Times the flow-CSV line cap was hit and CSV output was disabled.",
		}),
		RawLogCapReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvsflow_rawlog_cap_reached_total",
			Help: "Times the raw AEDAT log hit its disk-space-derived capacity.",
		}),
		SinkDegraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dvsflow_sink_degraded",
			Help: "1 if the named sink (serial, file) is degraded, 0 otherwise.",
		}, []string{"sink"}),
	}
	reg.MustRegister(r.FitRejections, r.AdmissionDrops, r.RingDrops, r.RingDepth,
		r.FlowRate, r.CSVCapReached, r.RawLogCapReached, r.SinkDegraded)
	return r
}

// ObserveRejection increments the per-reason rejection counter. Accepted is
// not a rejection and is ignored.
func (r *Registry) ObserveRejection(reason event.Rejection) {
	if reason == event.Accepted {
		return
	}
	r.FitRejections.WithLabelValues(reason.String()).Inc()
}
