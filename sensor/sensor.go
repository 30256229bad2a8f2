// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensor declares the external-collaborator interfaces this module
// treats as out of scope: sensor/USB transport, the bias/configuration
// tree, calibration acquisition, visualization, and the host
// module-lifecycle framework. The core depends only on these interfaces;
// no implementation lives in this module.
//
// Grounded on google-periph's conn package family (conn.Conn, conn.Resource
// as the thinnest possible hardware-facing interfaces, implemented
// elsewhere and merely consumed by drivers).
package sensor

import (
	"context"

	"github.com/inivation/dvsflow/event"
	"github.com/inivation/dvsflow/undistort"
)

// Source delivers packets of raw events from the camera driver. Within one
// packet, timestamps are non-decreasing. Packets is closed when the
// source is done; Close releases the underlying transport.
type Source interface {
	Packets() <-chan []event.Raw
	Close() error
}

// BiasTree is the external hierarchical bias/configuration store, distinct
// from this module's own config.Tree. It is read-only from the core's
// perspective.
type BiasTree interface {
	GetInt(path string) (int64, bool)
	GetFloat(path string) (float64, bool)
	GetBool(path string) (bool, bool)
}

// Calibration loads the two undistortion arrays, which carry no mandated
// on-disk format.
type Calibration interface {
	LoadUndistortion(path string) (*undistort.Map, error)
}

// Visualizer is an optional, best-effort sink of annotated events for
// on-screen display. Implementations must never block the caller; Show is
// typically backed by a bounded, drop-on-full channel of its own.
type Visualizer interface {
	Show(ev event.Event)
}

// Lifecycle models the host module-framework's start/stop/run-state
// callbacks that drive sink.Worker.Run/Shutdown and the pipeline's packet
// processing from outside this module.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}
