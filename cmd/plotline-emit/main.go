// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// plotline-emit is a synthetic producer. It sends the signals of the
// position-control rig (time, master_control, control, resistance,
// position, reference, model) to a collector at a fixed rate, which
// is enough to exercise windows, liveness, and session files without
// hardware attached.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/logging"
	"github.com/bureau-foundation/plotline/lib/netutil"
	"github.com/bureau-foundation/plotline/lib/process"
	"github.com/bureau-foundation/plotline/lib/sample"
	"github.com/bureau-foundation/plotline/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	network  string
	address  string
	rate     float64
	duration time.Duration
	count    int
	period   time.Duration
	drop     []string
}

func run() error {
	var (
		opts        options
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("plotline-emit", pflag.ContinueOnError)
	flagSet.StringVar(&opts.network, "network", "udp", "tcp, udp, unix, or unixgram")
	flagSet.StringVar(&opts.address, "address", "127.0.0.1:8080", "collector address or socket path")
	flagSet.Float64Var(&opts.rate, "rate", 100, "samples per second")
	flagSet.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	flagSet.IntVar(&opts.count, "count", 0, "stop after this many samples (0 means no limit)")
	flagSet.DurationVar(&opts.period, "period", 4*time.Second, "period of the reference square wave")
	flagSet.StringSliceVar(&opts.drop, "drop", nil, "signals to leave out of every sample")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("plotline-emit")
		return nil
	}
	if opts.rate <= 0 {
		return fmt.Errorf("--rate must be positive, got %g", opts.rate)
	}
	if !netutil.IsStreamNetwork(opts.network) && !netutil.IsPacketNetwork(opts.network) {
		return fmt.Errorf("unsupported --network %q", opts.network)
	}

	logger := logging.NewCommandLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, opts.network, opts.address)
	if err != nil {
		return fmt.Errorf("connecting to %s %s: %w", opts.network, opts.address, err)
	}
	defer conn.Close()

	sent, err := emit(ctx, conn, newRig(opts.period, opts.drop), clock.Real(), opts, logger)
	logger.Info("producer stopped", "samples", sent)
	return err
}

// emit writes one frame per tick until ctx ends or opts.count frames
// have been sent. It returns the number of frames written.
func emit(ctx context.Context, conn net.Conn, source *rig, clk clock.Clock, opts options, logger *slog.Logger) (int, error) {
	interval := time.Duration(float64(time.Second) / opts.rate)
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("producer started",
		"network", opts.network,
		"address", conn.RemoteAddr().String(),
		"interval", interval,
	)

	sent := 0
	for opts.count == 0 || sent < opts.count {
		frame, err := sample.Encode(source.Next(interval))
		if err != nil {
			return sent, fmt.Errorf("encoding sample %d: %w", sent, err)
		}
		if _, err := conn.Write(frame); err != nil {
			if ctx.Err() != nil {
				return sent, nil
			}
			return sent, fmt.Errorf("writing sample %d: %w", sent, err)
		}
		sent++

		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
	return sent, nil
}
