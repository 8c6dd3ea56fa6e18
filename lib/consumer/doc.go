// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package consumer runs the single goroutine that owns the liveness
// detector, the window store, and the session recorder.
//
// Each iteration pops samples from the transfer channel, feeds them
// through the detector, recorder, and windows, then re-evaluates
// liveness against the clock so a silent producer is noticed even
// when nothing arrives. A Connected to Disconnected transition flushes
// the session to disk and empties every window. Renderer-facing state
// is published as an immutable [feed.View] at the refresh cadence.
//
// On cancellation the loop flushes any open session before returning.
package consumer
