// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package window

import "fmt"

// Buffer is a fixed-capacity ring of points for one display group.
type Buffer struct {
	capacity int
	times    []float64
	// values[i] holds signal i's ring, aligned with times.
	values [][]float64
	// head is the index of the oldest point.
	head  int
	count int
}

// NewBuffer allocates a Buffer for the given number of signals.
// Capacity must be positive.
func NewBuffer(capacity, signals int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("window: capacity must be positive, got %d", capacity))
	}
	values := make([][]float64, signals)
	for i := range values {
		values[i] = make([]float64, capacity)
	}
	return &Buffer{
		capacity: capacity,
		times:    make([]float64, capacity),
		values:   values,
	}
}

// Push appends one point. values must hold exactly one value per
// signal. When the buffer is full the oldest point is overwritten.
func (b *Buffer) Push(time float64, values []float64) error {
	if len(values) != len(b.values) {
		return fmt.Errorf("window: point has %d values, buffer has %d signals", len(values), len(b.values))
	}
	var slot int
	if b.count < b.capacity {
		slot = (b.head + b.count) % b.capacity
		b.count++
	} else {
		slot = b.head
		b.head = (b.head + 1) % b.capacity
	}
	b.times[slot] = time
	for i, value := range values {
		b.values[i][slot] = value
	}
	return nil
}

// Reset zeroes every point and empties the buffer. Capacity is kept.
func (b *Buffer) Reset() {
	clear(b.times)
	for _, ring := range b.values {
		clear(ring)
	}
	b.head = 0
	b.count = 0
}

// Len returns the number of points held.
func (b *Buffer) Len() int { return b.count }

// Cap returns the capacity W.
func (b *Buffer) Cap() int { return b.capacity }

// Times returns a chronological copy of the x-axis values.
func (b *Buffer) Times() []float64 {
	return b.ordered(b.times)
}

// Values returns a chronological copy of signal i's values.
func (b *Buffer) Values(i int) []float64 {
	return b.ordered(b.values[i])
}

func (b *Buffer) ordered(ring []float64) []float64 {
	out := make([]float64, b.count)
	first := copy(out, ring[b.head:min(b.head+b.count, b.capacity)])
	copy(out[first:], ring[:b.count-first])
	return out
}
