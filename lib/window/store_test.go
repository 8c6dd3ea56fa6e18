// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/plotline/lib/sample"
)

var epoch = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, logger *slog.Logger, groups ...Group) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Groups: groups, Logger: logger})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreScenarioFivePoints(t *testing.T) {
	store := newTestStore(t, nil, Group{Name: "x", Signals: []string{"x"}, Capacity: 5})

	for i := 0; i < 5; i++ {
		store.Update(sample.New(epoch, sample.F("time", float64(i)/100), sample.F("x", float64(i+1))))
	}

	snapshot, err := store.Snapshot("x")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if diff := cmp.Diff([][]float64{{1, 2, 3, 4, 5}}, snapshot.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.01, 0.02, 0.03, 0.04}, snapshot.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}

	store.ResetAll()
	snapshot, _ = store.Snapshot("x")
	if len(snapshot.Times) != 0 || len(snapshot.Values[0]) != 0 {
		t.Errorf("snapshot after ResetAll not empty: %+v", snapshot)
	}
	if snapshot.Capacity != 5 {
		t.Errorf("capacity after ResetAll = %d, want 5", snapshot.Capacity)
	}
}

func TestStoreMissingKeyUsesLastKnownAndWarnsOnce(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	var warnings []MissingKeyWarning
	store, err := NewStore(StoreConfig{
		Groups:    []Group{{Name: "pos", Signals: []string{"position", "reference"}, Capacity: 10}},
		OnMissing: func(w MissingKeyWarning) { warnings = append(warnings, w) },
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	store.Update(sample.New(epoch, sample.F("time", 0), sample.F("position", 10)))
	store.Update(sample.New(epoch, sample.F("time", 1), sample.F("reference", 5)))
	store.Update(sample.New(epoch, sample.F("time", 2)))

	snapshot, _ := store.Snapshot("pos")
	want := [][]float64{
		{10, 10, 10},
		{0, 5, 5},
	}
	if diff := cmp.Diff(want, snapshot.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if len(warnings) != 2 {
		t.Fatalf("expected one warning per missing key, got %d: %+v", len(warnings), warnings)
	}
	if warnings[0].Key != "reference" || warnings[0].Substitute != 0 {
		t.Errorf("first warning = %+v, want reference substituted with 0", warnings[0])
	}
	if warnings[1].Key != "position" || warnings[1].Substitute != 10 {
		t.Errorf("second warning = %+v, want position substituted with 10", warnings[1])
	}
	if count := strings.Count(logs.String(), "signal missing from sample"); count != 2 {
		t.Errorf("logged %d missing-key lines, want 2", count)
	}

	// A new session warns again.
	store.ResetAll()
	store.Update(sample.New(epoch, sample.F("time", 0)))
	if len(warnings) != 4 {
		t.Errorf("expected warnings to re-arm after ResetAll, got %d", len(warnings))
	}
}

func TestStoreMissingTimeKey(t *testing.T) {
	var warnings []MissingKeyWarning
	store, err := NewStore(StoreConfig{
		TimeKey:   "t",
		Groups:    []Group{{Name: "g", Signals: []string{"v"}, Capacity: 2}},
		OnMissing: func(w MissingKeyWarning) { warnings = append(warnings, w) },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Update(sample.New(epoch, sample.F("v", 3)))

	if len(warnings) != 1 || warnings[0].Key != "t" {
		t.Fatalf("expected one warning for the time key, got %+v", warnings)
	}
	snapshot, _ := store.Snapshot("g")
	if diff := cmp.Diff([]float64{0}, snapshot.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
}

func TestStorePushAndResetByName(t *testing.T) {
	store := newTestStore(t, nil,
		Group{Name: "a", Signals: []string{"a1", "a2"}, Capacity: 3},
		Group{Name: "b", Signals: []string{"b1"}, Capacity: 3},
	)

	if err := store.Push("a", 1, []float64{1, 2}); err != nil {
		t.Fatalf("Push(a): %v", err)
	}
	if err := store.Push("b", 1, []float64{3}); err != nil {
		t.Fatalf("Push(b): %v", err)
	}
	if err := store.Reset("a"); err != nil {
		t.Fatalf("Reset(a): %v", err)
	}

	snapshots := store.Snapshots()
	if len(snapshots[0].Times) != 0 {
		t.Errorf("group a not reset: %+v", snapshots[0])
	}
	if len(snapshots[1].Times) != 1 {
		t.Errorf("group b affected by Reset(a): %+v", snapshots[1])
	}

	if err := store.Push("missing", 0, nil); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Push on unknown group error = %v, want ErrUnknownGroup", err)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := newTestStore(t, nil, Group{Name: "g", Signals: []string{"v"}, Capacity: 2, Colors: []string{"#fff"}})
	store.Push("g", 1, []float64{1})

	snapshot, _ := store.Snapshot("g")
	snapshot.Values[0][0] = 99
	snapshot.Colors[0] = "#000"

	again, _ := store.Snapshot("g")
	if again.Values[0][0] != 1 || again.Colors[0] != "#fff" {
		t.Fatalf("mutating a snapshot changed the store: %+v", again)
	}
}

func TestNewStoreValidation(t *testing.T) {
	tests := []struct {
		name   string
		groups []Group
	}{
		{"no name", []Group{{Signals: []string{"x"}, Capacity: 1}}},
		{"duplicate", []Group{{Name: "g", Signals: []string{"x"}, Capacity: 1}, {Name: "g", Signals: []string{"y"}, Capacity: 1}}},
		{"no signals", []Group{{Name: "g", Capacity: 1}}},
		{"zero capacity", []Group{{Name: "g", Signals: []string{"x"}}}},
		{"color count", []Group{{Name: "g", Signals: []string{"x", "y"}, Capacity: 1, Colors: []string{"red"}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewStore(StoreConfig{Groups: test.groups}); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
