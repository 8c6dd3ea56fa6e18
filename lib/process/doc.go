// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for plotline
// binaries. It holds the one raw stderr write that happens before the
// structured logger exists: reporting a fatal error from run() and
// exiting.
package process
