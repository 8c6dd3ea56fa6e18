// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionOpen is returned by Begin while a session is open.
	ErrSessionOpen = errors.New("recorder: session already open")

	// ErrNoSession is returned by Record when no session is open.
	ErrNoSession = errors.New("recorder: no open session")
)

// PersistenceError reports a session that could not be written. The
// session's data is retained for retry unless Dropped is set.
type PersistenceError struct {
	Directory string
	Start     time.Time
	End       time.Time
	Rows      int
	// Dropped is set when the pending queue was full and the oldest
	// pending session was discarded to make room.
	Dropped bool
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("recorder: persisting session ending %s (%d rows) to %s: %v",
		e.End.UTC().Format(time.RFC3339Nano), e.Rows, e.Directory, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
