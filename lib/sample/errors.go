// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"errors"
	"fmt"
)

// Causes carried by DecodeError. Match them with errors.Is.
var (
	ErrBadMarker       = errors.New("frame marker not found")
	ErrFrameLength     = errors.New("frame length out of range")
	ErrTrailingBytes   = errors.New("datagram holds bytes beyond one frame")
	ErrPayload         = errors.New("payload is not a CBOR field list")
	ErrEmptySample     = errors.New("sample has no fields")
	ErrEmptyName       = errors.New("field has an empty name")
	ErrDuplicateSignal = errors.New("field name repeated within one sample")
)

// DecodeError reports a frame that could not be turned into a Sample.
// It is recoverable: the offending bytes have already been skipped and
// decoding can continue with whatever follows.
type DecodeError struct {
	// Offset is the position of the bad frame within the buffer handed
	// to Parse (or 0 for a datagram).
	Offset int

	// Discarded is how many bytes were dropped because of this error.
	Discarded int

	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame at offset %d (%d bytes discarded): %v", e.Offset, e.Discarded, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
