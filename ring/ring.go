// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ring implements the output ring: a bounded, single-producer
// single-consumer queue between the flow pipeline and the sink worker.
// TryPush never blocks and never overwrites; on a full ring it drops the
// new record and reports false so the caller can count it.
//
// The teacher (google-periph) has no direct analog for a lock-free SPSC
// queue; this is built fresh in the teacher's general idiom (small struct,
// exported methods returning (T, bool), never panics on misuse), but atop
// atomic head/tail indices rather than a mutex, since TryPush must never
// block even if the consumer goroutine is paused mid-TryPop — see
// DESIGN.md.
package ring

import (
	"sync/atomic"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/metrics"
)

// Ring is a fixed-capacity FIFO of owned event.Event records. Exactly one
// goroutine may call TryPush and exactly one (possibly different)
// goroutine may call TryPop; concurrent calls on the same end are not
// supported. Len and Capacity may be called from any goroutine.
type Ring struct {
	buf     []event.Event
	mask    uint64 // len(buf)-1; buf is always sized to a power of two
	head    atomic.Uint64 // next slot to pop; written only by the consumer
	tail    atomic.Uint64 // next slot to push; written only by the producer
	metrics *metrics.Registry
}

// New allocates a Ring with at least the given capacity (typical
// 2^14-2^15), rounded up to the next power of two so slot indexing can use
// a mask instead of a division.
func New(capacity int, m *metrics.Registry) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{buf: make([]event.Event, size), mask: uint64(size - 1), metrics: m}
}

// Capacity returns the ring's fixed capacity (the power-of-two size New
// rounded up to, which may exceed the requested capacity).
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// TryPush attempts to enqueue ev. It returns false, without blocking or
// overwriting anything, if the ring is full, after counting the drop
// itself (via the metrics.Registry passed to New). Only the producer
// goroutine may call TryPush.
func (r *Ring) TryPush(ev event.Event) bool {
	tail := r.tail.Load()
	head := r.head.Load() // acquire: synchronizes with the consumer's TryPop store
	if tail-head > r.mask {
		if r.metrics != nil {
			r.metrics.RingDrops.Inc()
		}
		return false
	}
	r.buf[tail&r.mask] = ev
	r.tail.Store(tail + 1) // release: publishes buf[tail&mask] to the consumer
	if r.metrics != nil {
		r.metrics.RingDepth.Set(float64(tail + 1 - head))
	}
	return true
}

// TryPop removes and returns the oldest queued record, or the zero value
// and false if the ring is empty. Ownership of the returned record
// transfers to the caller. Only the consumer goroutine may call TryPop.
func (r *Ring) TryPop() (event.Event, bool) {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: synchronizes with the producer's TryPush store
	if head == tail {
		return event.Event{}, false
	}
	ev := r.buf[head&r.mask]
	r.head.Store(head + 1) // release
	if r.metrics != nil {
		r.metrics.RingDepth.Set(float64(tail - (head + 1)))
	}
	return ev, true
}

// Len returns the number of queued records at the moment of the call. Safe
// to call from any goroutine; under concurrent TryPush/TryPop it is a
// snapshot, not a synchronization point.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}
