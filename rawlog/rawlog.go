// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rawlog implements the raw AEDAT logger: a synchronous,
// append-only archive of every input event regardless of admission
// decisions. It supports the v2 and v3 header and addressing variants and
// is driven directly from the flow pipeline, which is the sole owner of
// the log handle.
//
// Grounded on davis_common.c's header-writing conventions from the
// original C source for the general shape (ASCII header, then a tight
// binary record loop), generalized here to both AEDAT wire variants.
package rawlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/inivation/dvsflow/diskspace"
	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/metrics"
)

// Variant selects the AEDAT wire format.
type Variant uint8

const (
	// V2 is the legacy ASCII-header + big-endian (address, timestamp)
	// variant.
	V2 Variant = iota
	// V3 is the newer RAW-format variant with a structured header and
	// little-endian (data, timestamp) records.
	V3
)

// endHeaderSentinel terminates both variants' ASCII headers. AEDAT v3
// names it explicitly ("#!END-HEADER\n"); this implementation also
// appends it to v2's metadata lines so a Reader has one unambiguous way to
// find the header/data boundary in either variant (see DESIGN.md).
const endHeaderSentinel = "#!END-HEADER\n"

func header(v Variant) []byte {
	switch v {
	case V3:
		var b bytes.Buffer
		b.WriteString("#!AER-DAT3.0\n")
		b.WriteString("#Format: RAW\r\n")
		b.WriteString("#Source 1: dvsflow\r\n")
		fmt.Fprintf(&b, "#Start-Time: %d\r\n", time.Now().UnixNano())
		b.WriteString(endHeaderSentinel)
		return b.Bytes()
	default:
		var b bytes.Buffer
		b.WriteString("#!AER-DAT2.0\n")
		b.WriteString("#Format: Raw\n")
		b.WriteString(endHeaderSentinel)
		return b.Bytes()
	}
}

// Writer is the owned handle to one raw AEDAT log file. Only the flow
// pipeline's thread calls WriteEvent.
type Writer struct {
	f        *os.File
	variant  Variant
	height   int
	capacity int64
	written  int64
	closed   bool
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// Open creates path, writes the variant's header, and precomputes a
// capacity from available disk space minus the safety margin. height is
// the sensor height, needed for v2's y-inversion.
func Open(path string, v Variant, height int, m *metrics.Registry, log zerolog.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "rawlog: open %q", path)
	}
	if _, err := f.Write(header(v)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "rawlog: write header %q", path)
	}
	capacity, err := diskspace.EventCapacity(path)
	if err != nil {
		// Disk probing is ambient infrastructure, not a correctness
		// requirement of the log itself; degrade to "no cap" rather than
		// fail initialization outright.
		log.Warn().Err(err).Msg("rawlog: disk-space probe failed, capacity unbounded")
		capacity = -1
	}
	return &Writer{f: f, variant: v, height: height, capacity: capacity, metrics: m, log: log}, nil
}

// addressV2 packs (x, y, p) as p | (x<<1) | (y<<8), with y inverted
// relative to sensor geometry.
func addressV2(r event.Raw, height int) uint32 {
	yInv := height - 1 - r.Y
	return uint32(r.P) | uint32(r.X)<<1 | uint32(yInv)<<8
}

// dataV3 packs the same fields without y-inversion, standing in for the
// sensor's native 32-bit event word (the exact bit layout is the sensor
// driver's concern, out of scope here).
func dataV3(r event.Raw) uint32 {
	return uint32(r.P) | uint32(r.X)<<1 | uint32(r.Y)<<8
}

// WriteEvent appends one (address, timestamp) record, in the variant's
// endianness. It is a no-op once the writer is closed. The write that
// reaches capacity emits one notice and closes the file; a failed write
// logs one error and closes it likewise.
func (w *Writer) WriteEvent(r event.Raw) error {
	if w.closed {
		return nil
	}
	var buf [8]byte
	var order binary.ByteOrder
	var addr uint32
	if w.variant == V3 {
		order = binary.LittleEndian
		addr = dataV3(r)
	} else {
		order = binary.BigEndian
		addr = addressV2(r, w.height)
	}
	order.PutUint32(buf[0:4], addr)
	order.PutUint32(buf[4:8], uint32(int32(r.T)))

	if _, err := w.f.Write(buf[:]); err != nil {
		w.log.Error().Err(err).Msg("rawlog: write failed, disabling")
		w.closeLocked()
		return err
	}
	w.written++
	if w.capacity >= 0 && w.written >= w.capacity {
		w.log.Warn().Msg("rawlog: capacity reached, closing")
		if w.metrics != nil {
			w.metrics.RawLogCapReached.Inc()
		}
		w.closeLocked()
	}
	return nil
}

func (w *Writer) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	w.f.Close()
}

// Close closes the underlying file. Safe to call after capacity has
// already closed it.
func (w *Writer) Close() error {
	w.closeLocked()
	return nil
}
