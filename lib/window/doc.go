// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package window keeps the bounded, most-recent history that a live
// display draws.
//
// A display is divided into groups (one plot each): a named set of
// signals sharing an x-axis and a capacity W. Each group owns a
// [Buffer], a ring of at most W points where a point is one time value
// plus one value per signal. Pushing beyond capacity evicts the oldest
// point. Memory is allocated once at construction and never grows.
//
// The [Store] maps incoming samples onto groups. The x-axis value comes
// from the configured time key (conventionally "time"). A signal that
// is absent from a sample resolves to its last known value in the
// current session, or zero if it has never been seen; the first miss
// of each key per session is logged as a [MissingKeyWarning] so that a
// misconfigured group is visible without flooding the log.
//
// The Store is owned by the consumer loop and is not safe for
// concurrent use. Readers on other goroutines receive copies through
// [Store.Snapshots].
package window
