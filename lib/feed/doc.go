// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed exposes the collector's state to renderers and
// operators over HTTP.
//
// The consumer publishes an immutable [View] to a [Publisher]; the
// [Server] only ever reads the latest View, so HTTP clients never
// contend with the consumer. Routes:
//
//	GET /metrics               Prometheus exposition
//	GET /api/status            latest View without window data
//	GET /api/windows           every window snapshot
//	GET /api/windows/{group}   one window snapshot
//	GET /api/sessions          persisted sessions from the index
//	GET /ws                    websocket stream of Views as JSON
//
// The feed is read-only.
package feed
