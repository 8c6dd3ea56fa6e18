// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/config"
	"github.com/bureau-foundation/plotline/lib/consumer"
	"github.com/bureau-foundation/plotline/lib/feed"
	"github.com/bureau-foundation/plotline/lib/ingest"
	"github.com/bureau-foundation/plotline/lib/liveness"
	"github.com/bureau-foundation/plotline/lib/metrics"
	"github.com/bureau-foundation/plotline/lib/netutil"
	"github.com/bureau-foundation/plotline/lib/recorder"
	"github.com/bureau-foundation/plotline/lib/sessionindex"
	"github.com/bureau-foundation/plotline/lib/transfer"
	"github.com/bureau-foundation/plotline/lib/window"
)

// collector owns every long-lived component. Startup failures (bind,
// output directory, index) are returned from newCollector before any
// goroutine starts.
type collector struct {
	ingest    *ingest.Server
	loop      *consumer.Loop
	publisher *feed.Publisher
	index     *sessionindex.Index

	feed         *feed.Server
	feedListener net.Listener

	logger *slog.Logger
}

func newCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*collector, error) {
	clk := clock.Real()
	registry := metrics.NewRegistry()
	collectorMetrics := metrics.New(registry)

	compression, err := recorder.ParseCompression(cfg.Recorder.Compression)
	if err != nil {
		return nil, err
	}

	c := &collector{publisher: feed.NewPublisher(), logger: logger}

	recorderConfig := recorder.Config{
		OutputDir:   cfg.Recorder.OutputDir,
		Compression: compression,
		MaxPending:  cfg.Recorder.MaxPending,
		Logger:      logger.With("component", "recorder"),
	}
	if cfg.Recorder.IndexPath != "" {
		c.index, err = sessionindex.Open(sessionindex.Config{
			Path:   cfg.Recorder.IndexPath,
			Logger: logger.With("component", "sessionindex"),
		})
		if err != nil {
			return nil, fmt.Errorf("opening session index: %w", err)
		}
		recorderConfig.Index = c.index
	}
	sessionRecorder, err := recorder.New(recorderConfig)
	if err != nil {
		c.Close()
		return nil, err
	}

	store, err := window.NewStore(window.StoreConfig{
		TimeKey: cfg.Window.TimeKey,
		Groups:  windowGroups(cfg.Window.Groups),
		OnMissing: func(warning window.MissingKeyWarning) {
			collectorMetrics.MissingKey(warning.Group)
		},
		Logger: logger.With("component", "window"),
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	channel := transfer.New(cfg.Channel.Capacity, clk)
	collectorMetrics.RegisterChannel(channel.Len, channel.Pushed, channel.Dropped)

	c.loop, err = consumer.New(consumer.Config{
		Channel:         channel,
		Detector:        liveness.NewDetector(cfg.Liveness.Timeout.Std()),
		Store:           store,
		Recorder:        sessionRecorder,
		Publisher:       c.publisher,
		PollInterval:    cfg.Consumer.PollInterval.Std(),
		RefreshInterval: cfg.Consumer.RefreshInterval.Std(),
		Clock:           clk,
		Metrics:         collectorMetrics,
		Logger:          logger.With("component", "consumer"),
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	c.ingest = ingest.New(ingest.Config{
		Network:          cfg.Listen.Network,
		IOTimeout:        cfg.Listen.IOTimeout.Std(),
		MaxPayloadLength: cfg.Listen.MaxFrameBytes,
		ReadBufferBytes:  cfg.Listen.ReadBufferBytes,
		Clock:            clk,
		Metrics:          collectorMetrics,
		Logger:           logger.With("component", "ingest"),
	}, channel)
	if err := c.ingest.Listen(cfg.Listen.Address); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.HTTP.Address != "" {
		c.feedListener, err = netutil.Listen(ctx, "tcp", cfg.HTTP.Address, netutil.SocketOptions{})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("binding feed on %s: %w", cfg.HTTP.Address, err)
		}
		serverConfig := feed.ServerConfig{
			Publisher:    c.publisher,
			Registry:     registry,
			PushInterval: cfg.Consumer.RefreshInterval.Std(),
			Clock:        clk,
			Logger:       logger.With("component", "feed"),
		}
		if c.index != nil {
			serverConfig.Sessions = c.index
		}
		c.feed = feed.NewServer(serverConfig)
	}
	return c, nil
}

// IngestAddr is the bound ingest address.
func (c *collector) IngestAddr() net.Addr { return c.ingest.Addr() }

// FeedAddr is the bound feed address, or nil when the feed is disabled.
func (c *collector) FeedAddr() net.Addr {
	if c.feedListener == nil {
		return nil
	}
	return c.feedListener.Addr()
}

// Run serves until ctx is cancelled or a component fails. The
// consumer flushes the open session before Run returns.
func (c *collector) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := c.ingest.Serve(groupCtx); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return c.loop.Run(groupCtx)
	})
	if c.feed != nil {
		listener := c.feedListener
		c.feedListener = nil
		group.Go(func() error {
			if err := c.feed.Serve(groupCtx, listener); err != nil {
				return fmt.Errorf("feed: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Close releases resources that Run did not take ownership of.
func (c *collector) Close() {
	if c.ingest != nil {
		c.ingest.Stop()
	}
	if c.feedListener != nil {
		c.feedListener.Close()
		c.feedListener = nil
	}
	if c.index != nil {
		if err := c.index.Close(); err != nil {
			c.logger.Warn("closing session index", "error", err)
		}
		c.index = nil
	}
}

func windowGroups(groups []config.GroupConfig) []window.Group {
	result := make([]window.Group, 0, len(groups))
	for _, group := range groups {
		result = append(result, window.Group{
			Name:     group.Name,
			Signals:  group.Signals,
			Capacity: group.Capacity,
			Title:    group.Title,
			XLabel:   group.XLabel,
			YLabel:   group.YLabel,
			Limits:   group.Limits,
			Colors:   group.Colors,
		})
	}
	return result
}
