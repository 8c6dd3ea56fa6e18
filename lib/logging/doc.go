// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger shared by plotline
// binaries. Terminals get slog's text format; pipes and files get
// JSON so collector logs can be ingested by log shippers unchanged.
package logging
