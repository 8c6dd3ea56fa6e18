// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBufferHoldsMostRecent(t *testing.T) {
	const capacity = 5
	for pushes := 0; pushes <= 3*capacity; pushes++ {
		buffer := NewBuffer(capacity, 1)
		for i := 0; i < pushes; i++ {
			if err := buffer.Push(float64(i), []float64{float64(i * 10)}); err != nil {
				t.Fatalf("Push: %v", err)
			}
		}

		held := min(pushes, capacity)
		if buffer.Len() != held {
			t.Fatalf("after %d pushes Len() = %d, want %d", pushes, buffer.Len(), held)
		}

		var wantTimes, wantValues []float64
		for i := pushes - held; i < pushes; i++ {
			wantTimes = append(wantTimes, float64(i))
			wantValues = append(wantValues, float64(i*10))
		}
		if diff := cmp.Diff(wantTimes, buffer.Times(), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("after %d pushes times mismatch (-want +got):\n%s", pushes, diff)
		}
		if diff := cmp.Diff(wantValues, buffer.Values(0), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("after %d pushes values mismatch (-want +got):\n%s", pushes, diff)
		}
	}
}

func TestBufferReset(t *testing.T) {
	buffer := NewBuffer(3, 2)
	for i := 0; i < 4; i++ {
		buffer.Push(float64(i), []float64{1, 2})
	}
	buffer.Reset()

	if buffer.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", buffer.Len())
	}
	if buffer.Cap() != 3 {
		t.Fatalf("Cap() after Reset = %d, want 3", buffer.Cap())
	}

	buffer.Push(9, []float64{7, 8})
	if diff := cmp.Diff([]float64{8}, buffer.Values(1)); diff != "" {
		t.Fatalf("values after Reset mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferRejectsWrongArity(t *testing.T) {
	buffer := NewBuffer(3, 2)
	if err := buffer.Push(0, []float64{1}); err == nil {
		t.Fatal("expected error for one value on a two-signal buffer")
	}
	if buffer.Len() != 0 {
		t.Fatalf("rejected push changed Len() to %d", buffer.Len())
	}
}
