// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer carries samples from ingest goroutines to the single
// consumer loop.
//
// [Channel] is a bounded FIFO with drop-oldest backpressure: Push never
// blocks, and when the channel is full the oldest unconsumed sample is
// evicted to make room. A stalled consumer therefore costs old data,
// never a stalled network reader. Pop blocks with a timeout so the
// consumer can interleave other periodic work (liveness evaluation,
// snapshot publication) on the same goroutine.
//
// Channel is the only structure shared across goroutines in the
// pipeline and is safe for concurrent use by any number of producers
// and consumers.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/sample"
)

// DefaultCapacity absorbs roughly one display frame of latency at
// kilohertz sample rates.
const DefaultCapacity = 1024

// Channel is a fixed-capacity ring of samples.
type Channel struct {
	mu      sync.Mutex
	ring    []sample.Sample
	head    int
	count   int
	pushed  uint64
	dropped uint64

	// notify has capacity 1 and is signalled (non-blocking) on every
	// Push so a blocked Pop wakes up.
	notify chan struct{}
	clock  clock.Clock
}

// New creates a Channel holding at most capacity samples. The capacity
// must be positive.
func New(capacity int, clk clock.Clock) *Channel {
	if capacity <= 0 {
		panic(fmt.Sprintf("transfer: capacity must be positive, got %d", capacity))
	}
	return &Channel{
		ring:   make([]sample.Sample, capacity),
		notify: make(chan struct{}, 1),
		clock:  clk,
	}
}

// Push appends s. If the channel is full the oldest sample is evicted
// first and Push reports true.
func (c *Channel) Push(s sample.Sample) (evicted bool) {
	c.mu.Lock()
	if c.count == len(c.ring) {
		c.ring[c.head] = sample.Sample{}
		c.head = (c.head + 1) % len(c.ring)
		c.count--
		c.dropped++
		evicted = true
	}
	c.ring[(c.head+c.count)%len(c.ring)] = s
	c.count++
	c.pushed++
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return evicted
}

// TryPop removes and returns the oldest sample without blocking.
func (c *Channel) TryPop() (sample.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return sample.Sample{}, false
	}
	s := c.ring[c.head]
	c.ring[c.head] = sample.Sample{}
	c.head = (c.head + 1) % len(c.ring)
	c.count--
	return s, true
}

// Pop removes and returns the oldest sample, waiting up to timeout for
// one to arrive. It returns false on timeout or when ctx is done. A
// non-positive timeout makes Pop equivalent to TryPop.
func (c *Channel) Pop(ctx context.Context, timeout time.Duration) (sample.Sample, bool) {
	if s, ok := c.TryPop(); ok || timeout <= 0 {
		return s, ok
	}

	expired := c.clock.After(timeout)
	for {
		select {
		case <-c.notify:
			if s, ok := c.TryPop(); ok {
				return s, true
			}
		case <-expired:
			return c.TryPop()
		case <-ctx.Done():
			return sample.Sample{}, false
		}
	}
}

// Len returns the number of queued samples.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Capacity returns the configured capacity.
func (c *Channel) Capacity() int {
	return len(c.ring)
}

// Pushed returns the total number of samples ever pushed.
func (c *Channel) Pushed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed
}

// Dropped returns the number of samples evicted by overflow.
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
