// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotListening is returned by Serve before a successful Listen.
	ErrNotListening = errors.New("ingest: server is not listening")

	// ErrStopped is returned by Listen and Serve after Stop.
	ErrStopped = errors.New("ingest: server stopped")

	// ErrTruncatedFrame is the cause of a ConnectionError for a peer
	// that closed with part of a frame unread.
	ErrTruncatedFrame = errors.New("connection closed mid-frame")
)

// BindError reports a failure to bind the listening endpoint. It is
// fatal at startup.
type BindError struct {
	Network string
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("ingest: binding %s %s: %v", e.Network, e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ConnectionError reports a stream connection that ended abnormally.
// Only that connection is affected.
type ConnectionError struct {
	Remote string
	// Buffered is the number of bytes of an incomplete frame lost
	// with the connection.
	Buffered int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ingest: connection %s: %v", e.Remote, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
