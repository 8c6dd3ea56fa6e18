// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/sample"
	"github.com/bureau-foundation/plotline/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func numbered(i int) sample.Sample {
	return sample.New(epoch, sample.F("n", float64(i)))
}

func number(t *testing.T, s sample.Sample) int {
	t.Helper()
	value, ok := s.Value("n")
	if !ok {
		t.Fatalf("sample has no n field: %+v", s)
	}
	return int(value)
}

func TestChannelFIFO(t *testing.T) {
	channel := New(8, clock.Fake(epoch))
	for i := 0; i < 5; i++ {
		if channel.Push(numbered(i)) {
			t.Fatalf("Push(%d) evicted below capacity", i)
		}
	}
	if channel.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", channel.Len())
	}
	for i := 0; i < 5; i++ {
		s, ok := channel.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: channel empty", i)
		}
		if got := number(t, s); got != i {
			t.Fatalf("TryPop %d returned %d", i, got)
		}
	}
	if _, ok := channel.TryPop(); ok {
		t.Fatal("TryPop on empty channel returned a sample")
	}
}

func TestChannelOverflowDropsOldest(t *testing.T) {
	const capacity = 4
	channel := New(capacity, clock.Fake(epoch))

	for i := 0; i <= capacity; i++ {
		evicted := channel.Push(numbered(i))
		if want := i == capacity; evicted != want {
			t.Fatalf("Push(%d) evicted = %v, want %v", i, evicted, want)
		}
	}

	if channel.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", channel.Dropped())
	}
	if channel.Pushed() != capacity+1 {
		t.Fatalf("Pushed() = %d, want %d", channel.Pushed(), capacity+1)
	}

	var got []int
	for {
		s, ok := channel.TryPop()
		if !ok {
			break
		}
		got = append(got, number(t, s))
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("consumer view mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelWrapsAround(t *testing.T) {
	channel := New(3, clock.Fake(epoch))
	var got []int
	for i := 0; i < 10; i++ {
		channel.Push(numbered(i))
		s, _ := channel.TryPop()
		got = append(got, number(t, s))
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got); diff != "" {
		t.Errorf("wraparound mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelPopWakesOnPush(t *testing.T) {
	channel := New(4, clock.Real())
	result := make(chan sample.Sample, 1)
	go func() {
		s, ok := channel.Pop(context.Background(), time.Minute)
		if ok {
			result <- s
		}
	}()

	channel.Push(numbered(42))
	s := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Pop")
	if number(t, s) != 42 {
		t.Fatalf("Pop returned %d, want 42", number(t, s))
	}
}

func TestChannelPopTimesOut(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	channel := New(4, fakeClock)
	done := make(chan bool, 1)
	go func() {
		_, ok := channel.Pop(context.Background(), 5*time.Millisecond)
		done <- ok
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(5 * time.Millisecond)
	if ok := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Pop timeout"); ok {
		t.Fatal("Pop on empty channel reported a sample")
	}
}

func TestChannelPopCancelled(t *testing.T) {
	channel := New(4, clock.Fake(epoch))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := channel.Pop(ctx, time.Hour)
		done <- ok
	}()
	cancel()
	if ok := testutil.RequireReceive(t, done, 5*time.Second, "waiting for cancelled Pop"); ok {
		t.Fatal("cancelled Pop reported a sample")
	}
}

func TestChannelConcurrentProducersNeverBlock(t *testing.T) {
	const producers, perProducer, capacity = 8, 500, 64
	channel := New(capacity, clock.Real())

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				channel.Push(numbered(i))
			}
		}()
	}
	wg.Wait()

	if channel.Len() != capacity {
		t.Fatalf("Len() = %d, want %d", channel.Len(), capacity)
	}
	if got, want := channel.Dropped(), uint64(producers*perProducer-capacity); got != want {
		t.Fatalf("Dropped() = %d, want %d", got, want)
	}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("New(0) did not panic")
		}
	}()
	New(0, clock.Real())
}
