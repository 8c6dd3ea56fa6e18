// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionindex keeps a SQLite catalogue of persisted session
// files: when each session ran, where its file lives, its shape, and
// a BLAKE3 digest of its uncompressed contents.
//
// The index is a convenience for the HTTP feed and operators. Session
// files remain the source of truth; losing the database loses only
// the catalogue.
package sessionindex
