// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/plotline/lib/sample"
	"github.com/bureau-foundation/plotline/lib/sessionindex"
)

const (
	// DefaultMaxPending bounds how many failed sessions are held for
	// retry.
	DefaultMaxPending = 4

	// fileTimeLayout names files from the session end time in UTC.
	fileTimeLayout = "20060102T150405.000Z"

	// maxCollisionSuffix caps the numeric suffix search for a free
	// file name.
	maxCollisionSuffix = 1000

	indexTimeout = 5 * time.Second
)

// Index receives an entry for every persisted session.
// *sessionindex.Index satisfies it.
type Index interface {
	Insert(ctx context.Context, entry sessionindex.Entry) (int64, error)
}

// Config configures New.
type Config struct {
	// OutputDir receives session files. It is created if absent.
	OutputDir string

	Compression Compression

	// MaxPending defaults to DefaultMaxPending.
	MaxPending int

	// Index, if set, is told about every persisted session. Index
	// failures are logged and do not fail the flush.
	Index Index

	// OnPersisted, if set, is called after each successful write.
	OnPersisted func(Result)

	// OnFailed, if set, is called with every persistence failure,
	// including failed retries.
	OnFailed func(*PersistenceError)

	Logger *slog.Logger
}

// Result describes one written session file. A zero Path means
// nothing was written.
type Result struct {
	Path        string
	Start       time.Time
	End         time.Time
	Rows        int
	Columns     []string
	Compression Compression
	// Digest is the hex BLAKE3 digest of the uncompressed CSV.
	Digest string
	// Bytes is the size of the file on disk.
	Bytes int64
}

// session is one span of samples between Begin and Flush.
type session struct {
	start   time.Time
	end     time.Time
	samples []sample.Sample
}

// Recorder accumulates the open session and writes closed ones.
type Recorder struct {
	outputDir   string
	compression Compression
	maxPending  int
	index       Index
	onPersisted func(Result)
	onFailed    func(*PersistenceError)
	logger      *slog.Logger

	current *session
	pending []*session
	// lastRetry holds the failures from the most recent retry pass.
	lastRetry []*PersistenceError
}

// New validates config and creates the output directory. A failure
// here is fatal to the caller: the recorder has nowhere to write.
func New(config Config) (*Recorder, error) {
	if config.OutputDir == "" {
		return nil, errors.New("recorder: OutputDir is required")
	}
	compression, err := ParseCompression(string(config.Compression))
	if err != nil {
		return nil, err
	}
	maxPending := config.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: creating output directory: %w", err)
	}
	return &Recorder{
		outputDir:   config.OutputDir,
		compression: compression,
		maxPending:  maxPending,
		index:       config.Index,
		onPersisted: config.OnPersisted,
		onFailed:    config.OnFailed,
		logger:      logger,
	}, nil
}

// Begin opens a session starting at start.
func (r *Recorder) Begin(start time.Time) error {
	if r.current != nil {
		return ErrSessionOpen
	}
	r.current = &session{start: start}
	return nil
}

// Record appends smp to the open session.
func (r *Recorder) Record(smp sample.Sample) error {
	if r.current == nil {
		return ErrNoSession
	}
	r.current.samples = append(r.current.samples, smp)
	return nil
}

// Open reports whether a session is open.
func (r *Recorder) Open() bool { return r.current != nil }

// Samples returns the number of samples in the open session.
func (r *Recorder) Samples() int {
	if r.current == nil {
		return 0
	}
	return len(r.current.samples)
}

// Pending returns the number of sessions awaiting retry.
func (r *Recorder) Pending() int { return len(r.pending) }

// Flush closes the open session at end and writes it. Pending sessions
// are retried first; their failures are reported through OnFailed and
// the log, not the return value.
//
// An empty or absent session writes nothing and returns a zero Result.
// If the write fails the session joins the pending queue and a
// *PersistenceError is returned.
func (r *Recorder) Flush(end time.Time) (Result, error) {
	r.retryPending()

	current := r.current
	r.current = nil
	if current == nil || len(current.samples) == 0 {
		return Result{}, nil
	}
	current.end = end

	result, err := r.persist(current)
	if err != nil {
		return Result{}, r.fail(current, err)
	}
	return result, nil
}

// Retry attempts every pending session once, oldest first, and
// returns the sessions it wrote. Sessions that fail again stay
// queued; their errors are joined in the returned error.
func (r *Recorder) Retry() ([]Result, error) {
	results := r.retryPending()
	return results, r.retryErrors()
}

func (r *Recorder) retryPending() []Result {
	if len(r.pending) == 0 {
		r.lastRetry = nil
		return nil
	}
	queued := r.pending
	r.pending = nil
	r.lastRetry = nil

	var results []Result
	for _, s := range queued {
		result, err := r.persist(s)
		if err != nil {
			r.lastRetry = append(r.lastRetry, r.fail(s, err))
			continue
		}
		r.logger.Info("pending session persisted", "path", result.Path, "rows", result.Rows)
		results = append(results, result)
	}
	return results
}

func (r *Recorder) retryErrors() error {
	if len(r.lastRetry) == 0 {
		return nil
	}
	errs := make([]error, len(r.lastRetry))
	for i, e := range r.lastRetry {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// fail queues s for retry, dropping the oldest pending session when
// the queue is full.
func (r *Recorder) fail(s *session, cause error) *PersistenceError {
	persistenceError := &PersistenceError{
		Directory: r.outputDir,
		Start:     s.start,
		End:       s.end,
		Rows:      len(s.samples),
		Err:       cause,
	}
	if len(r.pending) >= r.maxPending {
		dropped := r.pending[0]
		r.pending = r.pending[1:]
		persistenceError.Dropped = true
		r.logger.Error("pending session queue full, discarding oldest session",
			"end", dropped.end,
			"rows", len(dropped.samples),
		)
	}
	r.pending = append(r.pending, s)

	r.logger.Error("session persistence failed",
		"directory", r.outputDir,
		"end", s.end,
		"rows", len(s.samples),
		"pending", len(r.pending),
		"error", cause,
	)
	if r.onFailed != nil {
		r.onFailed(persistenceError)
	}
	return persistenceError
}

// persist writes s to a temporary file and renames it into place.
func (r *Recorder) persist(s *session) (Result, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating output directory: %w", err)
	}

	temporary, err := os.CreateTemp(r.outputDir, ".session-*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("creating temporary session file: %w", err)
	}
	temporaryPath := temporary.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(temporaryPath)
		}
	}()

	columns := Columns(s.samples)
	digest, err := r.writeCSV(temporary, columns, s.samples)
	if err != nil {
		temporary.Close()
		return Result{}, err
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return Result{}, fmt.Errorf("syncing temporary session file: %w", err)
	}
	info, err := temporary.Stat()
	if err != nil {
		temporary.Close()
		return Result{}, fmt.Errorf("stat temporary session file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return Result{}, fmt.Errorf("closing temporary session file: %w", err)
	}

	finalPath, err := r.freePath(s.end)
	if err != nil {
		return Result{}, err
	}
	if err := os.Rename(temporaryPath, finalPath); err != nil {
		return Result{}, fmt.Errorf("renaming session file into place: %w", err)
	}
	success = true

	// Sync the directory so the rename survives a crash. The file is
	// already complete, so a failure here is not a persistence error.
	if directory, err := os.Open(r.outputDir); err == nil {
		directory.Sync()
		directory.Close()
	}

	result := Result{
		Path:        finalPath,
		Start:       s.start,
		End:         s.end,
		Rows:        len(s.samples),
		Columns:     columns,
		Compression: r.compression,
		Digest:      digest,
		Bytes:       info.Size(),
	}
	r.logger.Info("session saved",
		"path", finalPath,
		"rows", result.Rows,
		"columns", len(columns),
		"bytes", result.Bytes,
		"duration", s.end.Sub(s.start),
	)
	r.record(result)
	if r.onPersisted != nil {
		r.onPersisted(result)
	}
	return result, nil
}

// writeCSV streams the table through the compressor into w and
// returns the digest of the uncompressed bytes.
func (r *Recorder) writeCSV(w io.Writer, columns []string, samples []sample.Sample) (string, error) {
	compressed, err := r.compression.compressor(w)
	if err != nil {
		return "", err
	}
	hasher := blake3.New()
	writer := csv.NewWriter(io.MultiWriter(compressed, hasher))

	if err := writer.Write(columns); err != nil {
		compressed.Close()
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := writer.WriteAll(Rows(columns, samples)); err != nil {
		compressed.Close()
		return "", fmt.Errorf("writing rows: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return "", fmt.Errorf("flushing %s stream: %w", r.compression, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// freePath returns the first unused file name for a session ending at
// end, adding a numeric suffix on collision.
func (r *Recorder) freePath(end time.Time) (string, error) {
	base := fileStem(end)
	extension := ".csv" + r.compression.Extension()
	for suffix := 0; suffix < maxCollisionSuffix; suffix++ {
		name := base + extension
		if suffix > 0 {
			name = base + "-" + strconv.Itoa(suffix) + extension
		}
		path := filepath.Join(r.outputDir, name)
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free file name for session ending %s", end.UTC().Format(fileTimeLayout))
}

func (r *Recorder) record(result Result) {
	if r.index == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	_, err := r.index.Insert(ctx, sessionindex.Entry{
		Start:       result.Start,
		End:         result.End,
		Path:        result.Path,
		Rows:        result.Rows,
		Columns:     result.Columns,
		Compression: string(result.Compression),
		Digest:      result.Digest,
		Bytes:       result.Bytes,
	})
	if err != nil {
		r.logger.Error("session index insert failed", "path", result.Path, "error", err)
	}
}

// FileName returns the base file name for a session ending at end.
func FileName(end time.Time, compression Compression) string {
	return fileStem(end) + ".csv" + compression.Extension()
}

func fileStem(end time.Time) string {
	return "session-" + end.UTC().Format(fileTimeLayout)
}
