// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recorder persists completed sessions as delimited text files.
//
// A session is opened with [Recorder.Begin], accumulates samples via
// [Recorder.Record], and is written by [Recorder.Flush]. The header is
// the union of every key seen in the session, in first-seen order, and
// each sample becomes one row with blank cells for keys it lacks:
//
//	time,a,b
//	0,1,
//	1,,2
//
// Files are named from the session's end timestamp in UTC and land in
// the output directory via a temporary file and rename, so a reader
// never observes a partial file. A session that cannot be written is
// kept in a bounded pending queue and retried by the next Flush or an
// explicit [Recorder.Retry].
//
// Recorder is not safe for concurrent use. It is owned by the consumer
// goroutine.
package recorder
