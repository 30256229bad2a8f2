// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sink implements the sink worker: the long-running task that
// drains the output ring to a serial port and/or a flow-CSV file. It also
// owns the timing-CSV handle the flow pipeline writes its per-packet
// telemetry row to.
//
// Grounded on flowOutput.c's poll-sleep-encode loop from the original C
// source, generalized to Go's goroutine-plus-channel idiom; the 100µs
// empty-read sleep and the lifecycle states (Starting, Running, Draining,
// Stopped) are unchanged. Serial I/O uses go.bug.st/serial, matching the
// teacher's own google-periph/conn/uart layering of a concrete transport
// behind a narrow interface.
package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/inivation/dvsflow/config"
	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/ring"
)

// State is one of the sink worker's lifecycle states.
type State uint8

const (
	Starting State = iota
	Running
	Draining
	Stopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// MaxCSVLines is the flow-CSV hard cap, retained as a policy choice rather
// than left unbounded.
const MaxCSVLines = 5_000_000

// frameTerminator is the one-byte record separator, unreachable in the
// coordinate field because sensor coordinates bound x16's high byte.
const frameTerminator = 0xFF

// frameSize is the full serial record: x16, y16, t32, u16, v16, terminator.
const frameSize = 2 + 2 + 4 + 2 + 2 + 1

// TimingRow is one per-packet telemetry row, written as given. Wx, Wy and
// D are columns for mean-flow and plane-fit diagnostics;
// pipeline.ProcessPacket fills only TLast, DelayUs and FlowRate and leaves
// Wx, Wy and D at zero.
type TimingRow struct {
	TLast    int64
	DelayUs  int64
	FlowRate float32
	Wx, Wy   float32
	D        float32
}

// Config selects which sinks are active and where they write.
type Config struct {
	Mode         config.OutputMode
	SerialPort   string // device path, only opened if Mode is serial or both
	FlowCSVPath  string // only opened if Mode is file or both
	TimingCSVPath string // optional; empty disables timing telemetry
	Header       string // flow-CSV header line (run parameters)
	MaxCSVLines  int64  // 0 means MaxCSVLines
}

// Worker drains ring.Ring to the configured sinks on its own goroutine.
type Worker struct {
	cfg     Config
	ring    *ring.Ring
	metrics *metrics.Registry
	log     zerolog.Logger

	serialPort io.WriteCloser
	flowCSV    *os.File
	flowW      *bufio.Writer
	timingCSV  *os.File
	timingW    *bufio.Writer

	lineCount     int64
	csvDisabled   bool
	serialDegraded bool

	state   atomic.Int32 // State
	draining atomic.Bool
	done    chan struct{}
}

// New opens the configured sinks and returns a Worker in the Starting
// state. Call Run to begin draining.
func New(r *ring.Ring, cfg Config, m *metrics.Registry, log zerolog.Logger) (*Worker, error) {
	if cfg.MaxCSVLines <= 0 {
		cfg.MaxCSVLines = MaxCSVLines
	}
	w := &Worker{cfg: cfg, ring: r, metrics: m, log: log, done: make(chan struct{})}
	w.state.Store(int32(Starting))

	if cfg.Mode == config.OutputSerial || cfg.Mode == config.OutputBoth {
		mode := &serial.Mode{BaudRate: 921600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
		port, err := serial.Open(cfg.SerialPort, mode)
		if err != nil {
			return nil, errors.Wrapf(err, "sink: open serial %q", cfg.SerialPort)
		}
		w.serialPort = port
	}
	if cfg.Mode == config.OutputFile || cfg.Mode == config.OutputBoth {
		f, err := os.Create(cfg.FlowCSVPath)
		if err != nil {
			if w.serialPort != nil {
				w.serialPort.Close()
			}
			return nil, errors.Wrapf(err, "sink: create flow csv %q", cfg.FlowCSVPath)
		}
		w.flowCSV = f
		w.flowW = bufio.NewWriter(f)
		if cfg.Header != "" {
			fmt.Fprintf(w.flowW, "#%s\n", cfg.Header)
		}
	}
	if cfg.TimingCSVPath != "" {
		f, err := os.Create(cfg.TimingCSVPath)
		if err != nil {
			w.closeAll()
			return nil, errors.Wrapf(err, "sink: create timing csv %q", cfg.TimingCSVPath)
		}
		w.timingCSV = f
		w.timingW = bufio.NewWriter(f)
	}
	return w, nil
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Run polls the ring until a shutdown request arrives, then drains it
// completely before transitioning to Stopped. It blocks until drained;
// callers run it on its own goroutine.
func (w *Worker) Run() {
	w.state.Store(int32(Running))
	for {
		ev, ok := w.ring.TryPop()
		if !ok {
			if w.draining.Load() {
				w.state.Store(int32(Stopped))
				w.flush()
				close(w.done)
				return
			}
			time.Sleep(100 * time.Microsecond)
			continue
		}
		w.handle(ev)
	}
}

// Shutdown requests the Draining transition and blocks until the worker
// has emptied the ring and reached Stopped.
func (w *Worker) Shutdown() {
	w.state.Store(int32(Draining))
	w.draining.Store(true)
	<-w.done
}

func (w *Worker) handle(ev event.Event) {
	if w.serialPort != nil && !w.serialDegraded {
		buf := encodeFrame(ev)
		n, err := w.serialPort.Write(buf[:])
		if err == nil && n != len(buf) {
			err = errors.Errorf("sink: short serial write (%d of %d bytes)", n, len(buf))
		}
		if err != nil {
			w.log.Error().Err(err).Msg("sink: serial write failed, degrading")
			w.serialDegraded = true
			if w.metrics != nil {
				w.metrics.SinkDegraded.WithLabelValues("serial").Set(1)
			}
		}
	}
	if w.flowW != nil && !w.csvDisabled {
		if w.lineCount >= w.cfg.MaxCSVLines {
			w.log.Warn().Msg("sink: flow csv line cap reached, disabling")
			w.csvDisabled = true
			if w.metrics != nil {
				w.metrics.CSVCapReached.Inc()
			}
		} else {
			fmt.Fprintf(w.flowW, "%d,%d,%d,%d,%.3f,%.3f\n", ev.X, ev.Y, ev.T, ev.P, ev.U, ev.V)
			w.lineCount++
		}
	}
}

// WriteTimingRow appends one per-packet telemetry row, reusing the handle
// set opened alongside the flow CSV. It is a no-op if no timing CSV path
// was configured.
func (w *Worker) WriteTimingRow(r TimingRow) {
	if w.timingW == nil {
		return
	}
	fmt.Fprintf(w.timingW, "%d,%d,%.3f,%.3f,%.3f,%.6f\n", r.TLast, r.DelayUs, r.FlowRate, r.Wx, r.Wy, r.D)
}

func (w *Worker) flush() {
	if w.flowW != nil {
		w.flowW.Flush()
	}
	if w.timingW != nil {
		w.timingW.Flush()
	}
	w.closeAll()
}

func (w *Worker) closeAll() {
	if w.serialPort != nil {
		w.serialPort.Close()
	}
	if w.flowCSV != nil {
		w.flowCSV.Close()
	}
	if w.timingCSV != nil {
		w.timingCSV.Close()
	}
}

// encodeFrame packs one accepted flow event into the 13-byte serial
// record: x16le, y16le, t32le, u16le, v16le, terminator.
func encodeFrame(ev event.Event) [frameSize]byte {
	var buf [frameSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(clipInt16(ev.Xu*10)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(clipInt16(ev.Yu*10)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(ev.T)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(clipInt16(ev.U*10)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(clipInt16(ev.V*10)))
	buf[12] = frameTerminator
	return buf
}

func clipInt16(v float32) int16 {
	r := math.Round(float64(v))
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
