// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeForHalfSizeOne(t *testing.T) {
	k := New(1)
	assert.Len(t, k.Neighbors(), 8)
}

func TestSizeForHalfSizeThree(t *testing.T) {
	k := New(3)
	assert.Len(t, k.Neighbors(), 48)
}

func TestNeverContainsOrigin(t *testing.T) {
	k := New(2)
	for _, o := range k.Neighbors() {
		assert.False(t, o.DX == 0 && o.DY == 0)
	}
}
