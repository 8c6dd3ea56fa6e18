// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sample defines the measurement record that flows through the
// pipeline and its wire codec.
//
// A [Sample] is one arrival from the instrument: the time it was
// received and an ordered list of named float64 fields. Field order is
// the wire order, which is what the session recorder uses to lay out
// its columns. Different samples in one session may carry different
// field sets.
//
// Wire format. Every sample travels as one frame:
//
//	+------+------+--------------------+-------------------+
//	| 'P'  | 'L'  | length (uint32 BE) | payload (length)  |
//	+------+------+--------------------+-------------------+
//
// The payload is a CBOR array of [name, value] pairs encoded with
// [codec.Marshal]. The two-byte marker lets a stream reader find the
// next frame after a corrupt header.
//
// Stream transports deliver bytes in arbitrary chunks, so [Parse] and
// [Parser] work incrementally: they consume what is complete and return
// the remainder. An incomplete frame is never an error. A corrupt
// header yields a [DecodeError] and the parser skips ahead to the next
// marker; a corrupt payload behind a valid header yields a DecodeError
// and the parser continues after that frame. Neither case ends the
// connection.
//
// Datagram transports use [DecodeFrame]: each datagram must hold
// exactly one frame and nothing else.
package sample
