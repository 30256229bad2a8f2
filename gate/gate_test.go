// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gate

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/tsmem"
)

func newTestGate() *Gate {
	return New(metrics.NewRegistry(prometheus.NewRegistry()))
}

// TestRefractoryBlocksSecondEvent checks that two ON events at the same
// pixel 99us apart are blocked by a 100us refractory period, but pass
// through with a 50us refractory period.
func TestRefractoryBlocksSecondEvent(t *testing.T) {
	mem := tsmem.New(32, 32)
	mem.Set(10, 10, true, 1000)

	strict := newTestGate()
	assert.False(t, strict.Admit(10, 10, 1099, true, mem, 0, Config{RefractoryPeriod: 100}))

	lenient := newTestGate()
	assert.True(t, lenient.Admit(10, 10, 1099, true, mem, 0, Config{RefractoryPeriod: 50}))
}

func TestRateLimitDropsAboveSetpoint(t *testing.T) {
	mem := tsmem.New(32, 32)
	g := newTestGate()
	cfg := Config{RefractoryPeriod: 0, RateEnabled: true, RateSetpoint: 100}
	assert.False(t, g.Admit(5, 5, 10_000, true, mem, 150, cfg))
	assert.True(t, g.Admit(5, 5, 10_000, true, mem, 50, cfg))
}

func TestRateLimitIgnoredWhenDisabled(t *testing.T) {
	mem := tsmem.New(32, 32)
	g := newTestGate()
	cfg := Config{RefractoryPeriod: 0, RateEnabled: false, RateSetpoint: 1}
	assert.True(t, g.Admit(5, 5, 10_000, true, mem, 10_000, cfg))
}
