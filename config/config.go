// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config implements the hierarchical configuration surface: a tree
// of scalar leaves, loadable from YAML and re-readable at runtime, with
// scalar writes routed straight to the pipeline's atomics and the one
// structural leaf (flow/dx) routed through kernel regeneration.
//
// Grounded on google-periph's conn/gpio/gpioreg registry (a mutex-guarded
// map behind ByName/Register/All), generalized here from a flat pin
// registry to a nested key tree and from a static registration-time API to
// one with live Set/Get at any node.
package config

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OutputMode selects which sinks the sink worker writes to.
type OutputMode string

const (
	OutputNone   OutputMode = "none"
	OutputFile   OutputMode = "file"
	OutputSerial OutputMode = "serial"
	OutputBoth   OutputMode = "both"
)

// FileConfig mirrors the configuration surface for YAML decoding. Field
// names match their dotted config paths via yaml tags on nested structs.
type FileConfig struct {
	Flow struct {
		RefractoryPeriod int64   `yaml:"refractoryPeriod"`
		DtMax            int64   `yaml:"dtMax"`
		VMax             float32 `yaml:"vMax"`
		Dx               uint8   `yaml:"dx"`
		NReject          uint32  `yaml:"nReject"`
		MaxNRMSE         float32 `yaml:"maxNRMSE"`
		DtStopFactor     float32 `yaml:"dtStopFactor"`
		NMin             uint32  `yaml:"nMin"`
	} `yaml:"flow"`
	Rate struct {
		Enabled  bool    `yaml:"enabled"`
		Setpoint float32 `yaml:"setpoint"`
		Tau      float32 `yaml:"tau"`
	} `yaml:"rate"`
	Output struct {
		Mode OutputMode `yaml:"mode"`
	} `yaml:"output"`
}

// Default returns the documented defaults for every configuration leaf.
func Default() FileConfig {
	var c FileConfig
	c.Flow.RefractoryPeriod = 100000
	c.Flow.DtMax = 2000000
	c.Flow.VMax = 1000.0
	c.Flow.Dx = 2
	c.Flow.NReject = 2
	c.Flow.MaxNRMSE = 0.3
	c.Flow.DtStopFactor = 3.0
	c.Flow.NMin = 8
	c.Rate.Enabled = false
	c.Rate.Setpoint = 2500.0
	c.Rate.Tau = 0.01
	c.Output.Mode = OutputFile
	return c
}

// Load decodes a YAML document at path into a FileConfig seeded with
// Default(), so a partial file only overrides the leaves it names.
func Load(path string) (FileConfig, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "config: read %q", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "config: parse %q", path)
	}
	return c, nil
}

// Sink is the set of live-reconfiguration hooks a Tree drives. pipeline.Pipeline
// implements it; Tree never imports package pipeline to avoid a cycle.
type Sink interface {
	SetRefractoryPeriod(int64)
	SetDtMax(int64)
	SetVMax(float32)
	SetNReject(uint32)
	SetMaxNRMSE(float32)
	SetDtStopFactor(float32)
	SetNMin(uint32)
	SetRateEnabled(bool)
	SetRateSetpoint(float32)
	SetRateTau(float32)
	SetKernelHalfSize(uint8) error
}

// Tree is the runtime configuration surface: a mutex-guarded snapshot plus
// the Sink it forwards writes to, mirroring gpioreg's
// "registry behind a lock, exported accessors" shape.
type Tree struct {
	mu   sync.RWMutex
	vals FileConfig
	sink Sink
}

// New builds a Tree seeded with initial, forwarding every future Set to
// sink.
func New(initial FileConfig, sink Sink) *Tree {
	return &Tree{vals: initial, sink: sink}
}

// Snapshot returns a copy of the tree's current values.
func (t *Tree) Snapshot() FileConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vals
}

// SetRefractoryPeriod updates flow/refractoryPeriod.
func (t *Tree) SetRefractoryPeriod(v int64) {
	t.mu.Lock()
	t.vals.Flow.RefractoryPeriod = v
	t.mu.Unlock()
	t.sink.SetRefractoryPeriod(v)
}

// SetDtMax updates flow/dtMax.
func (t *Tree) SetDtMax(v int64) {
	t.mu.Lock()
	t.vals.Flow.DtMax = v
	t.mu.Unlock()
	t.sink.SetDtMax(v)
}

// SetVMax updates flow/vMax.
func (t *Tree) SetVMax(v float32) {
	t.mu.Lock()
	t.vals.Flow.VMax = v
	t.mu.Unlock()
	t.sink.SetVMax(v)
}

// SetNReject updates flow/nReject.
func (t *Tree) SetNReject(v uint32) {
	t.mu.Lock()
	t.vals.Flow.NReject = v
	t.mu.Unlock()
	t.sink.SetNReject(v)
}

// SetMaxNRMSE updates flow/maxNRMSE.
func (t *Tree) SetMaxNRMSE(v float32) {
	t.mu.Lock()
	t.vals.Flow.MaxNRMSE = v
	t.mu.Unlock()
	t.sink.SetMaxNRMSE(v)
}

// SetDtStopFactor updates flow/dtStopFactor.
func (t *Tree) SetDtStopFactor(v float32) {
	t.mu.Lock()
	t.vals.Flow.DtStopFactor = v
	t.mu.Unlock()
	t.sink.SetDtStopFactor(v)
}

// SetNMin updates flow/nMin.
func (t *Tree) SetNMin(v uint32) {
	t.mu.Lock()
	t.vals.Flow.NMin = v
	t.mu.Unlock()
	t.sink.SetNMin(v)
}

// SetRateEnabled updates rate/enabled.
func (t *Tree) SetRateEnabled(v bool) {
	t.mu.Lock()
	t.vals.Rate.Enabled = v
	t.mu.Unlock()
	t.sink.SetRateEnabled(v)
}

// SetRateSetpoint updates rate/setpoint.
func (t *Tree) SetRateSetpoint(v float32) {
	t.mu.Lock()
	t.vals.Rate.Setpoint = v
	t.mu.Unlock()
	t.sink.SetRateSetpoint(v)
}

// SetRateTau updates rate/tau.
func (t *Tree) SetRateTau(v float32) {
	t.mu.Lock()
	t.vals.Rate.Tau = v
	t.mu.Unlock()
	t.sink.SetRateTau(v)
}

// SetFlowDx updates flow/dx, the one structural leaf: it is routed through
// the pipeline's exclusive-lock kernel regeneration rather than an atomic
// store.
func (t *Tree) SetFlowDx(v uint8) error {
	if err := t.sink.SetKernelHalfSize(v); err != nil {
		return err
	}
	t.mu.Lock()
	t.vals.Flow.Dx = v
	t.mu.Unlock()
	return nil
}
