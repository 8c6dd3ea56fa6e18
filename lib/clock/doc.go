// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so that time-dependent
// pipeline logic can be tested deterministically.
//
// Production code receives [Real]; tests receive a [FakeClock] from
// [Fake] and move time with [FakeClock.Advance]. The liveness timeout,
// the transfer channel's pop timeout, arrival stamping in the ingest
// server, and session file naming all read time through a Clock, so a
// test can walk a session from first sample to disconnect without
// sleeping.
//
// FakeClock waiters (After, Sleep, tickers) fire in deadline order
// during Advance. [FakeClock.WaitForTimers] closes the race between a
// goroutine registering a timer and the test advancing past it.
package clock
