// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness infers whether the producing instrument is still
// connected from the timing of sample arrivals.
//
// The instrument never announces that it has stopped, and datagram
// transports have no connection to close, so the pipeline treats a
// silence longer than the configured timeout as a disconnect. The
// [Detector] turns arrivals and periodic evaluations into session
// boundaries:
//
//	Idle         --arrival-->           Connected     (Opened)
//	Connected    --arrival-->           Connected     (inactivity reset)
//	Connected    --silence > timeout--> Disconnected  (Closed)
//	Disconnected --arrival-->           Connected     (Opened)
//
// The timeout is wall-clock time, not a count of empty polls, so the
// disconnect delay does not depend on how fast the consumer loop spins.
// A disconnect requires a gap strictly greater than the timeout, so a
// single missed poll at exactly the boundary does not flap the state.
//
// A Detector is owned by one goroutine and is not safe for concurrent
// use.
package liveness

import (
	"fmt"
	"time"
)

// DefaultTimeout is the silence that ends a session unless configured
// otherwise.
const DefaultTimeout = time.Second

// State is the inferred connection status.
type State int

const (
	// Idle means no sample has ever arrived.
	Idle State = iota
	// Connected means samples are arriving within the timeout.
	Connected
	// Disconnected means the last session ended by timeout.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition is the session boundary produced by one detector call.
type Transition int

const (
	// None means the state did not change.
	None Transition = iota
	// Opened means a new session starts with this arrival.
	Opened
	// Closed means the open session ended.
	Closed
)

func (t Transition) String() string {
	switch t {
	case None:
		return "none"
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Detector is the liveness state machine.
type Detector struct {
	timeout  time.Duration
	state    State
	lastSeen time.Time
}

// NewDetector returns a Detector in the Idle state. A non-positive
// timeout selects DefaultTimeout.
func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{timeout: timeout}
}

// Observe records an arrival at the given time. It returns Opened when
// the arrival starts a new session. Arrivals earlier than the last one
// seen do not move the inactivity reference backwards.
func (d *Detector) Observe(at time.Time) Transition {
	if at.After(d.lastSeen) {
		d.lastSeen = at
	}
	if d.state == Connected {
		return None
	}
	d.state = Connected
	return Opened
}

// Evaluate checks the silence since the last arrival against the
// timeout. It returns Closed exactly once per session, on the first
// evaluation at which the gap strictly exceeds the timeout.
func (d *Detector) Evaluate(now time.Time) Transition {
	if d.state != Connected {
		return None
	}
	if now.Sub(d.lastSeen) <= d.timeout {
		return None
	}
	d.state = Disconnected
	return Closed
}

// Close ends an open session regardless of silence, as when the
// collector shuts down. It returns Closed if a session was open.
func (d *Detector) Close() Transition {
	if d.state != Connected {
		return None
	}
	d.state = Disconnected
	return Closed
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// LastSeen returns the time of the most recent arrival, or the zero
// time if none has been observed.
func (d *Detector) LastSeen() time.Time { return d.lastSeen }

// Timeout returns the configured silence threshold.
func (d *Detector) Timeout() time.Duration { return d.timeout }
