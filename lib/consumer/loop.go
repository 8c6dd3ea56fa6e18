// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/feed"
	"github.com/bureau-foundation/plotline/lib/liveness"
	"github.com/bureau-foundation/plotline/lib/metrics"
	"github.com/bureau-foundation/plotline/lib/recorder"
	"github.com/bureau-foundation/plotline/lib/sample"
	"github.com/bureau-foundation/plotline/lib/transfer"
	"github.com/bureau-foundation/plotline/lib/window"
)

const (
	DefaultPollInterval    = time.Millisecond
	DefaultRefreshInterval = 50 * time.Millisecond
)

// Config wires a Loop to its collaborators. Channel, Detector, Store,
// and Recorder are required.
type Config struct {
	Channel  *transfer.Channel
	Detector *liveness.Detector
	Store    *window.Store
	Recorder *recorder.Recorder

	// Publisher, if set, receives a View every RefreshInterval and
	// on every liveness transition.
	Publisher *feed.Publisher

	// PollInterval bounds each blocking Pop. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration

	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Loop is the consumer. All methods must be called from one goroutine.
type Loop struct {
	channel   *transfer.Channel
	detector  *liveness.Detector
	store     *window.Store
	recorder  *recorder.Recorder
	publisher *feed.Publisher

	pollInterval    time.Duration
	refreshInterval time.Duration
	clock           clock.Clock
	metrics         *metrics.Metrics
	logger          *slog.Logger

	sessionStart time.Time
	counters     feed.SessionCounters
	lastPublish  time.Time
}

// New validates config and returns a Loop.
func New(config Config) (*Loop, error) {
	if config.Channel == nil || config.Detector == nil || config.Store == nil || config.Recorder == nil {
		return nil, errors.New("consumer: Channel, Detector, Store, and Recorder are required")
	}
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	refreshInterval := config.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		channel:         config.Channel,
		detector:        config.Detector,
		store:           config.Store,
		recorder:        config.Recorder,
		publisher:       config.Publisher,
		pollInterval:    pollInterval,
		refreshInterval: refreshInterval,
		clock:           clk,
		metrics:         config.Metrics,
		logger:          logger,
	}, nil
}

// Run consumes until ctx is cancelled, then flushes the open session
// and publishes a final View. It always returns nil; persistence
// failures are logged and retained by the recorder.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("consumer started",
		"timeout", l.detector.Timeout(),
		"poll_interval", l.pollInterval,
		"refresh_interval", l.refreshInterval,
	)
	l.publish(l.clock.Now())

	for ctx.Err() == nil {
		if smp, ok := l.channel.Pop(ctx, l.pollInterval); ok {
			l.Ingest(smp)
			l.drain(l.channel.Capacity() - 1)
		}
		l.Tick(l.clock.Now())
	}

	l.Shutdown()
	return nil
}

// drain ingests up to limit queued samples without blocking and
// returns how many it took. The limit keeps producers that refill the
// channel as fast as it empties from starving Tick.
func (l *Loop) drain(limit int) int {
	taken := 0
	for taken < limit {
		smp, ok := l.channel.TryPop()
		if !ok {
			break
		}
		l.Ingest(smp)
		taken++
	}
	return taken
}

// Ingest routes one sample through the detector, recorder, and
// windows. A gap longer than the timeout since the previous sample
// closes the old session before the sample opens a new one.
func (l *Loop) Ingest(smp sample.Sample) {
	if l.detector.Evaluate(smp.Arrival) == liveness.Closed {
		l.closeSession(smp.Arrival)
	}
	if l.detector.Observe(smp.Arrival) == liveness.Opened {
		l.openSession(smp.Arrival)
	}

	// Begin has always run by now, so Record cannot fail.
	_ = l.recorder.Record(smp)
	l.store.Update(smp)
	l.metrics.SetSessionSamples(l.recorder.Samples())
}

// Tick evaluates liveness at now and publishes a View when the
// refresh interval has elapsed.
func (l *Loop) Tick(now time.Time) {
	l.metrics.ConsumerIteration()
	if l.detector.Evaluate(now) == liveness.Closed {
		l.closeSession(now)
		l.publish(now)
		return
	}
	if now.Sub(l.lastPublish) >= l.refreshInterval {
		l.publish(now)
	}
}

// Shutdown flushes the open session, if any, and publishes a final
// View. Run calls it on cancellation.
func (l *Loop) Shutdown() {
	now := l.clock.Now()
	if l.detector.Close() == liveness.Closed || l.recorder.Open() {
		l.logger.Info("flushing open session on shutdown", "samples", l.recorder.Samples())
		l.closeSession(now)
	} else if l.recorder.Pending() > 0 {
		if _, err := l.recorder.Retry(); err != nil {
			l.logger.Error("pending sessions could not be persisted before exit",
				"pending", l.recorder.Pending(),
				"error", err,
			)
		}
	}
	l.publish(now)
	l.logger.Info("consumer stopped",
		"sessions_opened", l.counters.Opened,
		"sessions_persisted", l.counters.Persisted,
		"pending", l.recorder.Pending(),
	)
}

// Counters returns the session counters since startup.
func (l *Loop) Counters() feed.SessionCounters {
	counters := l.counters
	counters.Pending = l.recorder.Pending()
	return counters
}

func (l *Loop) openSession(start time.Time) {
	if err := l.recorder.Begin(start); err != nil {
		l.logger.Error("session already open at connect", "error", err)
	}
	l.sessionStart = start
	l.counters.Opened++
	l.metrics.SessionOpened()
	l.metrics.SetLivenessState(int(l.detector.State()))
	l.logger.Info("producer session opened", "start", start)
	l.publish(start)
}

// closeSession flushes the recorder at end and empties every window.
func (l *Loop) closeSession(end time.Time) {
	samples := l.recorder.Samples()
	l.logger.Info("producer session closed",
		"end", end,
		"samples", samples,
		"duration", end.Sub(l.sessionStart),
	)

	result, err := l.recorder.Flush(end)
	if err != nil {
		l.counters.Failed++
		l.metrics.PersistenceError()
	} else if result.Path != "" {
		l.counters.Persisted++
		l.counters.LastFile = filepath.Base(result.Path)
		l.metrics.SessionPersisted()
	}
	l.metrics.SetPending(l.recorder.Pending())
	l.metrics.SetSessionSamples(0)
	l.metrics.SetLivenessState(int(l.detector.State()))

	l.store.ResetAll()
}

func (l *Loop) publish(now time.Time) {
	l.lastPublish = now
	if l.publisher == nil {
		return
	}
	view := &feed.View{
		GeneratedAt: now,
		State:       l.detector.State().String(),
		LastSeen:    l.detector.LastSeen(),
		Sessions:    l.Counters(),
		Channel: feed.ChannelStats{
			Depth:    l.channel.Len(),
			Capacity: l.channel.Capacity(),
			Pushed:   l.channel.Pushed(),
			Dropped:  l.channel.Dropped(),
		},
		Windows: l.store.Snapshots(),
	}
	if l.recorder.Open() {
		view.Session = &feed.SessionInfo{Start: l.sessionStart, Samples: l.recorder.Samples()}
	}
	l.publisher.Publish(view)
}
