// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds Plotline's CBOR encoding configuration.
//
// Sample payloads on the wire are CBOR. Every producer and consumer in
// this module encodes through [Marshal] so that identical samples
// produce identical bytes: the encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2) with the shortest float form that preserves the
// value exactly.
//
// The decoder is strict because its input comes from the network:
// indefinite-length items are rejected, duplicate map keys are errors,
// nesting and container sizes are bounded, and trailing bytes after the
// single top-level item fail [Unmarshal]. A strict decode failure is a
// frame-level problem for the caller to report, never a reason to tear
// down a connection.
//
// Struct types decoded by this package use `cbor` tags. Record-like
// types that travel as fixed arrays use the `toarray` option:
//
//	type pair struct {
//		_     struct{} `cbor:",toarray"`
//		Name  string
//		Value float64
//	}
package codec
