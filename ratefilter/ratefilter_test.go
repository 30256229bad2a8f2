// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ratefilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateMovesTowardInstantaneousRate(t *testing.T) {
	e := New(0.01)
	e.Update(0.01) // dt == tau -> alpha == 1, full step
	assert.InDelta(t, 1/(0.01+1e-5), e.Rate(), 0.5)
}

func TestUpdateFromTimestampsIgnoresNonCausal(t *testing.T) {
	e := New(0.01)
	e.UpdateFromTimestamps(1000, 1000)
	assert.Equal(t, float32(0), e.Rate())
	e.UpdateFromTimestamps(1000, 500)
	assert.Equal(t, float32(0), e.Rate())
}

func TestAlphaIsClampedToOne(t *testing.T) {
	e := New(0.01)
	e.Update(1.0) // dt >> tau
	assert.True(t, e.IsFinite())
}
