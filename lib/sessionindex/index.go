// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	start_ns    INTEGER NOT NULL,
	end_ns      INTEGER NOT NULL,
	path        TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	column_list TEXT NOT NULL,
	compression TEXT NOT NULL,
	digest      TEXT NOT NULL,
	bytes       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_end ON sessions(end_ns);
`

// Entry describes one persisted session file.
type Entry struct {
	ID          int64     `json:"id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Path        string    `json:"path"`
	Rows        int       `json:"rows"`
	Columns     []string  `json:"columns"`
	Compression string    `json:"compression"`
	// Digest is the hex BLAKE3 digest of the uncompressed file.
	Digest string `json:"digest"`
	Bytes  int64  `json:"bytes"`
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the database file. Its parent directory must exist. Use
	// ":memory:" only with PoolSize 1.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	Logger *slog.Logger
}

// Index is a SQLite-backed catalogue of session files. It is safe for
// concurrent use.
type Index struct {
	pool *pool
}

// Open opens or creates the index database and ensures the schema.
func Open(config Config) (*Index, error) {
	if config.Path == "" {
		return nil, errors.New("sessionindex: Path is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p, err := openPool(config.Path, config.PoolSize, logger, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	})
	if err != nil {
		return nil, err
	}

	// Take one connection now so schema errors surface at startup
	// rather than on the first insert.
	conn, err := p.take(context.Background())
	if err != nil {
		p.close()
		return nil, err
	}
	p.put(conn)

	return &Index{pool: p}, nil
}

// Insert records entry and returns its assigned ID. entry.ID is
// ignored.
func (x *Index) Insert(ctx context.Context, entry Entry) (int64, error) {
	conn, err := x.pool.take(ctx)
	if err != nil {
		return 0, err
	}
	defer x.pool.put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO sessions (start_ns, end_ns, path, row_count, column_list, compression, digest, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			entry.Start.UnixNano(),
			entry.End.UnixNano(),
			entry.Path,
			entry.Rows,
			strings.Join(entry.Columns, "\x1f"),
			entry.Compression,
			entry.Digest,
			entry.Bytes,
		}})
	if err != nil {
		return 0, fmt.Errorf("sessionindex: inserting %s: %w", entry.Path, err)
	}
	return conn.LastInsertRowID(), nil
}

// List returns up to limit entries, most recent end time first. A
// non-positive limit returns every entry.
func (x *Index) List(ctx context.Context, limit int) ([]Entry, error) {
	conn, err := x.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer x.pool.put(conn)

	query := `SELECT id, start_ns, end_ns, path, row_count, column_list, compression, digest, bytes
		FROM sessions ORDER BY end_ns DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var entries []Entry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				ID:          stmt.ColumnInt64(0),
				Start:       time.Unix(0, stmt.ColumnInt64(1)).UTC(),
				End:         time.Unix(0, stmt.ColumnInt64(2)).UTC(),
				Path:        stmt.ColumnText(3),
				Rows:        stmt.ColumnInt(4),
				Columns:     splitColumns(stmt.ColumnText(5)),
				Compression: stmt.ColumnText(6),
				Digest:      stmt.ColumnText(7),
				Bytes:       stmt.ColumnInt64(8),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sessionindex: listing sessions: %w", err)
	}
	return entries, nil
}

// Close closes every connection. It blocks until borrowed connections
// are returned.
func (x *Index) Close() error {
	return x.pool.close()
}

func splitColumns(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\x1f")
}
