// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest accepts producer connections and turns framed bytes
// into samples pushed onto a [Sink].
//
// Stream networks (tcp, unix) run one reader goroutine per accepted
// connection, each with its own incremental parser so frames split
// across reads are reassembled. Datagram networks (udp, unixgram) read
// one frame per datagram with no cross-datagram buffering.
//
// Decode errors never end a connection: the bad bytes are skipped and
// reading continues. A connection ends on peer close, on an unexpected
// read error (reported as a [ConnectionError]), or on [Server.Stop],
// which closes the listening endpoint and every connection and waits
// for all readers to exit.
package ingest
