// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// plotline-collector receives telemetry samples from a producer,
// keeps a sliding window per display group, and writes one CSV file
// per producer session.
//
// Configuration comes from --config, then PLOTLINE_CONFIG, then the
// built-in defaults (UDP on 0.0.0.0:8080 with the control, resistance,
// and position groups). With http.address set, the collector also
// serves the current windows, status, metrics, and a websocket feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/plotline/lib/config"
	"github.com/bureau-foundation/plotline/lib/logging"
	"github.com/bureau-foundation/plotline/lib/process"
	"github.com/bureau-foundation/plotline/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
		checkOnly   bool
	)
	flagSet := pflag.NewFlagSet("plotline-collector", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to plotline.yaml (default: $PLOTLINE_CONFIG, then built-in defaults)")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the configuration and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("plotline-collector")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if checkOnly {
		return nil
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := newCollector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer collector.Close()

	logger.Info("collector running",
		"version", version.Info(),
		"network", cfg.Listen.Network,
		"address", collector.IngestAddr().String(),
		"output_dir", cfg.Recorder.OutputDir,
	)
	err = collector.Run(ctx)
	logger.Info("collector stopped")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("PLOTLINE_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}
