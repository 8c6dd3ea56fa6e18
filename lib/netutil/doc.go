// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides socket and HTTP helpers shared by the
// collector and its clients.
//
// Listen and ListenPacket bind stream and datagram endpoints with the
// collector's socket options applied (address reuse, an optional
// receive buffer size, stale unix socket removal). IsExpectedCloseError
// and IsTimeout classify errors that occur during normal connection
// teardown and deadline-driven polling.
//
// DecodeResponse and ErrorBody bound HTTP response body reads for the
// small JSON documents served by the collector's feed.
package netutil
