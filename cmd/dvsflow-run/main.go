// Copyright 2024 The DVSFlow Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dvsflow-run wires the flow pipeline, the output ring, and the sink
// worker into one running process, driven from the command line. No
// sensor.Source implementation is wired in, so no events reach the
// pipeline from this command.
//
// Grounded on google-periph's experimental/cmd/*/main.go shape (a
// mainImpl() error separated from main() for testable error formatting,
// signal.Notify-based shutdown), with flag parsing lifted to
// github.com/urfave/cli/v2 in the style of other CLI-fronted Go daemons.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/inivation/dvsflow/config"
	"github.com/inivation/dvsflow/metrics"
	"github.com/inivation/dvsflow/pipeline"
	"github.com/inivation/dvsflow/planefit"
	"github.com/inivation/dvsflow/rawlog"
	"github.com/inivation/dvsflow/ring"
	"github.com/inivation/dvsflow/sink"
	"github.com/inivation/dvsflow/undistort"
)

func paramsFromFile(c config.FileConfig) pipeline.Params {
	return pipeline.Params{
		RefractoryPeriod: c.Flow.RefractoryPeriod,
		DtMax:            c.Flow.DtMax,
		VMax:             c.Flow.VMax,
		Dx:               c.Flow.Dx,
		NReject:          c.Flow.NReject,
		MaxNRMSE:         c.Flow.MaxNRMSE,
		DtStopFactor:     c.Flow.DtStopFactor,
		NMin:             c.Flow.NMin,
		RateEnabled:      c.Rate.Enabled,
		RateSetpoint:     c.Rate.Setpoint,
		RateTau:          c.Rate.Tau,
		Goodness:         planefit.NMSE,
	}
}

func run(c *cli.Context) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	width := c.Int("width")
	height := c.Int("height")

	fc, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if mode := c.String("output-mode"); mode != "" {
		fc.Output.Mode = config.OutputMode(mode)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	r := ring.New(c.Int("ring-capacity"), reg)

	sinkW, err := sink.New(r, sink.Config{
		Mode:          fc.Output.Mode,
		SerialPort:    c.String("serial-port"),
		FlowCSVPath:   c.String("flow-csv"),
		TimingCSVPath: c.String("timing-csv"),
		Header:        "dvsflow-run",
	}, reg, log)
	if err != nil {
		return err
	}

	var rawWriter *rawlog.Writer
	if path := c.String("raw-log"); path != "" {
		variant := rawlog.V2
		if c.String("raw-log-variant") == "v3" {
			variant = rawlog.V3
		}
		rawWriter, err = rawlog.Open(path, variant, height, reg, log)
		if err != nil {
			return err
		}
		defer rawWriter.Close()
	}

	umap := undistort.Identity(width, height)
	// rawWriter is passed only when non-nil: a typed-nil *rawlog.Writer
	// boxed into the pipeline's rawLogger interface would compare non-nil
	// and panic on first use.
	var pl *pipeline.Pipeline
	if rawWriter != nil {
		pl = pipeline.New(width, height, umap, r, rawWriter, sinkW, reg, log, paramsFromFile(fc))
	} else {
		pl = pipeline.New(width, height, umap, r, nil, sinkW, reg, log, paramsFromFile(fc))
	}
	_ = config.New(fc, pl) // the Tree is discarded: this command never re-loads the file or calls its setters

	go sinkW.Run()

	halt := make(chan os.Signal, 1)
	signal.Notify(halt, syscall.SIGTERM, syscall.SIGINT)

	log.Info().Str("output_mode", string(fc.Output.Mode)).Msg("dvsflow-run started")

	// A real deployment wires a sensor.Source implementation here and calls
	// pl.ProcessPacket for every packet it delivers; no concrete Source
	// ships with this module.
	<-halt

	log.Info().Msg("shutting down")
	sinkW.Shutdown()
	return nil
}

func main() {
	app := &cli.App{
		Name:  "dvsflow-run",
		Usage: "run the DVS optical-flow pipeline against a sensor.Source",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "dvsflow.yaml", Usage: "path to the YAML configuration file"},
			&cli.StringFlag{Name: "serial-port", Value: "/dev/ttyUSB0", Usage: "serial device for flow output"},
			&cli.StringFlag{Name: "output-mode", Usage: "override output/mode: none|file|serial|both"},
			&cli.StringFlag{Name: "flow-csv", Value: "flow.csv", Usage: "flow-CSV output path"},
			&cli.StringFlag{Name: "timing-csv", Usage: "timing-CSV output path (disabled if empty)"},
			&cli.StringFlag{Name: "raw-log", Usage: "raw AEDAT log output path (disabled if empty)"},
			&cli.StringFlag{Name: "raw-log-variant", Value: "v2", Usage: "v2 or v3"},
			&cli.IntFlag{Name: "width", Value: 240, Usage: "sensor width in pixels"},
			&cli.IntFlag{Name: "height", Value: 180, Usage: "sensor height in pixels"},
			&cli.IntFlag{Name: "ring-capacity", Value: 1 << 15, Usage: "output ring capacity"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dvsflow-run: %s\n", err)
		os.Exit(1)
	}
}
