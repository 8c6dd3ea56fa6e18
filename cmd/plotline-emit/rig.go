// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"slices"
	"time"

	"github.com/bureau-foundation/plotline/lib/sample"
)

// Rig constants. Positions span the display's 0..41000 tick range and
// PWM stays inside 0..100 percent.
const (
	lowReference  = 8_000
	highReference = 32_000
	maxPWM        = 100
	// Proportional gain from position error (ticks) to PWM percent.
	gain = 0.01
	// Ticks per second at full PWM.
	slewRate = 60_000
	// Time constant of the model's first-order response.
	modelTau = 0.35
)

// rig simulates a PWM-driven positioner tracking a square-wave
// reference, with a first-order model drawn alongside.
type rig struct {
	period  time.Duration
	drop    []string
	elapsed time.Duration

	position float64
	model    float64
}

func newRig(period time.Duration, drop []string) *rig {
	if period <= 0 {
		period = 4 * time.Second
	}
	return &rig{period: period, drop: drop, position: lowReference, model: lowReference}
}

// Next advances the simulation by step and returns the sample for the
// new state. The first call reports time zero.
func (r *rig) Next(step time.Duration) sample.Sample {
	seconds := r.elapsed.Seconds()
	reference := float64(lowReference)
	if r.elapsed%r.period >= r.period/2 {
		reference = highReference
	}

	master := clamp(gain*(reference-r.position), -maxPWM, maxPWM)
	// The drive quantises to whole percent.
	control := math.Round(math.Abs(master))
	resistance := 1.7 + 1.5*math.Sin(2*math.Pi*seconds/r.period.Seconds())

	fields := []sample.Field{
		sample.F("time", seconds),
		sample.F("master_control", math.Abs(master)),
		sample.F("control", control),
		sample.F("resistance", resistance),
		sample.F("position", math.Round(r.position)),
		sample.F("reference", reference),
		sample.F("model", math.Round(r.model)),
	}
	fields = slices.DeleteFunc(fields, func(field sample.Field) bool {
		return slices.Contains(r.drop, field.Name)
	})

	dt := step.Seconds()
	r.position = clamp(r.position+master/maxPWM*slewRate*dt, 0, 41_000)
	r.model += (reference - r.model) * (1 - math.Exp(-dt/modelTau))
	r.elapsed += step

	return sample.New(time.Time{}, fields...)
}

func clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}
