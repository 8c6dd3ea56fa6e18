// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/feed"
	"github.com/bureau-foundation/plotline/lib/liveness"
	"github.com/bureau-foundation/plotline/lib/recorder"
	"github.com/bureau-foundation/plotline/lib/sample"
	"github.com/bureau-foundation/plotline/lib/testutil"
	"github.com/bureau-foundation/plotline/lib/transfer"
	"github.com/bureau-foundation/plotline/lib/window"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

type harness struct {
	loop      *Loop
	channel   *transfer.Channel
	store     *window.Store
	publisher *feed.Publisher
	outputDir string
}

func newHarness(t *testing.T, timeout time.Duration, clk clock.Clock) *harness {
	t.Helper()
	store, err := window.NewStore(window.StoreConfig{
		Groups: []window.Group{{Name: "x", Signals: []string{"x"}, Capacity: 5}},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	outputDir := filepath.Join(t.TempDir(), "sessions")
	rec, err := recorder.New(recorder.Config{OutputDir: outputDir})
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}
	channel := transfer.New(64, clk)
	publisher := feed.NewPublisher()
	loop, err := New(Config{
		Channel:         channel,
		Detector:        liveness.NewDetector(timeout),
		Store:           store,
		Recorder:        rec,
		Publisher:       publisher,
		RefreshInterval: 50 * time.Millisecond,
		Clock:           clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{loop: loop, channel: channel, store: store, publisher: publisher, outputDir: outputDir}
}

func (h *harness) sessionFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.outputDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var paths []string
	for _, entry := range entries {
		paths = append(paths, filepath.Join(h.outputDir, entry.Name()))
	}
	return paths
}

func (h *harness) windowValues(t *testing.T) []float64 {
	t.Helper()
	snapshot, err := h.store.Snapshot("x")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snapshot.Values[0]
}

func TestSessionClosesAfterSilence(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond, clock.Fake(epoch))

	for i := range 5 {
		arrival := epoch.Add(time.Duration(i) * 10 * time.Millisecond)
		h.loop.Ingest(sample.New(arrival, sample.F("time", float64(i)/100), sample.F("x", float64(i+1))))
		h.loop.Tick(arrival)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5}, h.windowValues(t)); diff != "" {
		t.Fatalf("window mismatch (-want +got):\n%s", diff)
	}

	last := epoch.Add(40 * time.Millisecond)
	h.loop.Tick(last.Add(200 * time.Millisecond))
	if files := h.sessionFiles(t); len(files) != 0 {
		t.Fatalf("session closed at exactly the timeout: %v", files)
	}

	h.loop.Tick(last.Add(250 * time.Millisecond))
	files := h.sessionFiles(t)
	if len(files) != 1 {
		t.Fatalf("got %d session files, want 1", len(files))
	}
	records, err := recorder.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := [][]string{
		{"time", "x"},
		{"0", "1"}, {"0.01", "2"}, {"0.02", "3"}, {"0.03", "4"}, {"0.04", "5"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("session file mismatch (-want +got):\n%s", diff)
	}
	if got := filepath.Base(files[0]); got != recorder.FileName(last.Add(250*time.Millisecond), recorder.CompressionNone) {
		t.Errorf("file named %s, want the detection time", got)
	}

	if values := h.windowValues(t); len(values) != 0 {
		t.Errorf("window not reset after disconnect: %v", values)
	}
	counters := h.loop.Counters()
	if counters.Opened != 1 || counters.Persisted != 1 || counters.LastFile != filepath.Base(files[0]) {
		t.Errorf("counters = %+v", counters)
	}
	if view := h.publisher.Load(); view.State != "disconnected" || view.Session != nil {
		t.Errorf("published view after close = state %q session %+v", view.State, view.Session)
	}
}

func TestGapBetweenArrivalsSplitsSessions(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond, clock.Fake(epoch))

	h.loop.Ingest(sample.New(epoch, sample.F("time", 0), sample.F("a", 1)))
	h.loop.Ingest(sample.New(epoch.Add(100*time.Millisecond), sample.F("time", 1), sample.F("b", 2)))
	// No Tick ran during the silence; the next arrival notices it.
	h.loop.Ingest(sample.New(epoch.Add(time.Second), sample.F("time", 0), sample.F("x", 7)))

	files := h.sessionFiles(t)
	if len(files) != 1 {
		t.Fatalf("got %d session files, want 1", len(files))
	}
	records, err := recorder.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := [][]string{{"time", "a", "b"}, {"0", "1", ""}, {"1", "", "2"}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("first session mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float64{7}, h.windowValues(t)); diff != "" {
		t.Errorf("window should hold only the new session (-want +got):\n%s", diff)
	}
	if counters := h.loop.Counters(); counters.Opened != 2 || counters.Persisted != 1 {
		t.Errorf("counters = %+v", counters)
	}
}

func TestTickPublishesAtRefreshInterval(t *testing.T) {
	h := newHarness(t, time.Second, clock.Fake(epoch))

	h.loop.Tick(epoch)
	first := h.publisher.Load()
	if first == nil {
		t.Fatal("no view published on first tick")
	}
	h.loop.Tick(epoch.Add(10 * time.Millisecond))
	if h.publisher.Load() != first {
		t.Error("view republished before the refresh interval")
	}
	h.loop.Tick(epoch.Add(60 * time.Millisecond))
	if h.publisher.Load() == first {
		t.Error("view not republished after the refresh interval")
	}
}

func TestRunFlushesOpenSessionOnCancel(t *testing.T) {
	h := newHarness(t, time.Hour, clock.Real())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	for i := range 3 {
		h.channel.Push(sample.New(time.Now(), sample.F("time", float64(i)), sample.F("x", float64(i))))
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		view := h.publisher.Load()
		return view != nil && view.Session != nil && view.Session.Samples == 3
	}, "samples not consumed")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run did not return"); err != nil {
		t.Fatalf("Run = %v", err)
	}

	files := h.sessionFiles(t)
	if len(files) != 1 {
		t.Fatalf("got %d session files after cancel, want 1", len(files))
	}
	records, err := recorder.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("flushed file has %d records, want header plus 3 rows", len(records))
	}

	view := h.publisher.Load()
	if view.State != "disconnected" || view.Session != nil {
		t.Errorf("final view state = %q session = %v, want disconnected with no session", view.State, view.Session)
	}
	if view.Sessions.Persisted != 1 {
		t.Errorf("final view persisted = %d, want 1", view.Sessions.Persisted)
	}
}

func TestDrainIsBounded(t *testing.T) {
	h := newHarness(t, time.Hour, clock.Fake(epoch))
	for i := range 6 {
		h.channel.Push(sample.New(epoch.Add(time.Duration(i)*time.Millisecond),
			sample.F("time", float64(i)), sample.F("x", float64(i))))
	}

	if taken := h.loop.drain(4); taken != 4 {
		t.Errorf("drain(4) took %d samples, want 4", taken)
	}
	if h.channel.Len() != 2 {
		t.Errorf("channel holds %d samples after drain, want 2", h.channel.Len())
	}
	if h.loop.recorder.Samples() != 4 {
		t.Errorf("session holds %d samples, want 4", h.loop.recorder.Samples())
	}

	if taken := h.loop.drain(4); taken != 2 {
		t.Errorf("second drain took %d samples, want the remaining 2", taken)
	}
}

func TestRunWithoutSamplesWritesNothing(t *testing.T) {
	h := newHarness(t, time.Hour, clock.Real())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	testutil.Eventually(t, 5*time.Second, func() bool { return h.publisher.Load() != nil }, "no initial view")
	cancel()
	testutil.RequireReceive(t, done, 5*time.Second, "Run did not return")

	if files := h.sessionFiles(t); len(files) != 0 {
		t.Errorf("idle run wrote %v", files)
	}
	if view := h.publisher.Load(); view.State != "idle" {
		t.Errorf("final state = %q, want idle", view.State)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}
