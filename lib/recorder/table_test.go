// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/plotline/lib/sample"
)

func TestColumnsFirstSeenOrder(t *testing.T) {
	samples := []sample.Sample{
		sample.New(sessionStart, sample.F("time", 0), sample.F("z", 1)),
		sample.New(sessionStart, sample.F("a", 1), sample.F("time", 1)),
		sample.New(sessionStart, sample.F("z", 2), sample.F("m", 3)),
	}
	if diff := cmp.Diff([]string{"time", "z", "a", "m"}, Columns(samples)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestRowsLeaveMissingCellsBlank(t *testing.T) {
	samples := []sample.Sample{
		sample.New(sessionStart, sample.F("time", 0.5), sample.F("a", -1.25)),
		sample.New(sessionStart, sample.F("b", 1e-9)),
	}
	got := Rows([]string{"time", "a", "b"}, samples)
	want := [][]string{
		{"0.5", "-1.25", ""},
		{"", "", "1e-09"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}
