// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the collector's configuration.
//
// Configuration is loaded from a single file specified by either the
// PLOTLINE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no file search. Values
// absent from the file keep the [Default] values, which reproduce the
// instrument's stock deployment: UDP on port 8080, a one second
// liveness timeout, and three display groups of 10000 points.
//
// Files ending in .json or .jsonc are parsed as JSON with comments;
// everything else is YAML. Unknown keys are errors in both formats.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct, one field per section
//   - [Default] -- the stock deployment
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Duration] -- a time.Duration written as "1s" or "50ms"
//
// This package depends on no other plotline packages.
package config
