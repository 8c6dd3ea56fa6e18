// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never hang when a goroutine fails to deliver.
// [Eventually] polls a condition for state that is observable only
// from outside a goroutine (a file appearing, a counter moving). These
// helpers are the only place tests use real wall-clock timeouts.
//
// [SocketDir] creates a short directory under /tmp for Unix domain
// sockets, whose paths are limited to 108 bytes.
//
// All helpers fail the test with t.Fatalf rather than returning errors.
package testutil
