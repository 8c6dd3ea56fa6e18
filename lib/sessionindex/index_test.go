// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionindex_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/plotline/lib/sessionindex"
)

func openTestIndex(t *testing.T) *sessionindex.Index {
	t.Helper()
	index, err := sessionindex.Open(sessionindex.Config{
		Path: filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { index.Close() })
	return index
}

func TestInsertAndList(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	first := sessionindex.Entry{
		Start:       base,
		End:         base.Add(5 * time.Second),
		Path:        "/data/session-a.csv",
		Rows:        5,
		Columns:     []string{"time", "x"},
		Compression: "none",
		Digest:      "aa",
		Bytes:       40,
	}
	second := first
	second.Start = base.Add(time.Minute)
	second.End = base.Add(time.Minute + 250*time.Millisecond)
	second.Path = "/data/session-b.csv.zst"
	second.Columns = []string{"time", "a", "b"}
	second.Compression = "zstd"

	firstID, err := index.Insert(ctx, first)
	if err != nil {
		t.Fatalf("Insert first: %v", err)
	}
	secondID, err := index.Insert(ctx, second)
	if err != nil {
		t.Fatalf("Insert second: %v", err)
	}
	if secondID <= firstID {
		t.Fatalf("IDs not increasing: %d then %d", firstID, secondID)
	}

	entries, err := index.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	first.ID = firstID
	second.ID = secondID
	if diff := cmp.Diff([]sessionindex.Entry{second, first}, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	limited, err := index.List(ctx, 1)
	if err != nil {
		t.Fatalf("List(1): %v", err)
	}
	if len(limited) != 1 || limited[0].ID != secondID {
		t.Errorf("List(1) = %+v, want only the most recent entry", limited)
	}
}

func TestListEmpty(t *testing.T) {
	index := openTestIndex(t)
	entries, err := index.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List on empty index returned %d entries", len(entries))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	index, err := sessionindex.Open(sessionindex.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := index.Insert(context.Background(), sessionindex.Entry{Path: "kept.csv", Compression: "none"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := index.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := sessionindex.Open(sessionindex.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "kept.csv" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func TestConcurrentInserts(t *testing.T) {
	index := openTestIndex(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := index.Insert(ctx, sessionindex.Entry{
				End:         time.Unix(int64(i), 0),
				Path:        filepath.Join("/data", string(rune('a'+i))),
				Compression: "none",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Insert: %v", err)
		}
	}

	entries, err := index.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != writers {
		t.Errorf("List returned %d entries, want %d", len(entries), writers)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sessionindex.Open(sessionindex.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}
