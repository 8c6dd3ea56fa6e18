// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/plotline/lib/sample"
)

// DefaultTimeKey is the field conventionally carrying the
// session-relative timestamp.
const DefaultTimeKey = "time"

// Group describes one display group. The display fields are passed
// through to snapshots untouched for the renderer.
type Group struct {
	Name     string
	Signals  []string
	Capacity int

	Title  string
	XLabel string
	YLabel string
	// Limits is the initial y range. A zero range means autoscale.
	Limits [2]float64
	// Colors holds one colour per signal, or is empty.
	Colors []string
}

// Snapshot is a copy of one group's window, oldest point first.
type Snapshot struct {
	Group    string      `json:"group"`
	Title    string      `json:"title,omitempty"`
	XLabel   string      `json:"x_label,omitempty"`
	YLabel   string      `json:"y_label,omitempty"`
	Limits   [2]float64  `json:"limits"`
	Colors   []string    `json:"colors,omitempty"`
	Capacity int         `json:"capacity"`
	Signals  []string    `json:"signals"`
	Times    []float64   `json:"times"`
	Values   [][]float64 `json:"values"`
}

// MissingKeyWarning describes a group signal or the time key absent
// from a sample. It is logged, never returned to callers of Update.
type MissingKeyWarning struct {
	Group      string
	Key        string
	Substitute float64
}

func (w MissingKeyWarning) Error() string {
	return fmt.Sprintf("window group %q: key %q missing from sample, substituting %v", w.Group, w.Key, w.Substitute)
}

// ErrUnknownGroup is returned for operations naming a group that was
// not configured.
var ErrUnknownGroup = errors.New("window: unknown group")

type groupEntry struct {
	config Group
	buffer *Buffer
}

// Store holds one Buffer per configured group.
type Store struct {
	timeKey string
	groups  []groupEntry
	byName  map[string]int

	// lastKnown and warned are scoped to the current session and
	// cleared by ResetAll.
	lastKnown map[string]float64
	warned    map[string]struct{}

	onMissing func(MissingKeyWarning)
	logger    *slog.Logger
}

// StoreConfig configures NewStore.
type StoreConfig struct {
	// TimeKey names the x-axis field. Empty selects DefaultTimeKey.
	TimeKey string

	Groups []Group

	// OnMissing, if set, is called for every logged missing key.
	OnMissing func(MissingKeyWarning)

	Logger *slog.Logger
}

// NewStore validates the group configuration and allocates every
// buffer.
func NewStore(config StoreConfig) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeKey := config.TimeKey
	if timeKey == "" {
		timeKey = DefaultTimeKey
	}

	store := &Store{
		timeKey:   timeKey,
		byName:    make(map[string]int, len(config.Groups)),
		lastKnown: make(map[string]float64),
		warned:    make(map[string]struct{}),
		onMissing: config.OnMissing,
		logger:    logger,
	}
	for _, group := range config.Groups {
		if group.Name == "" {
			return nil, errors.New("window: group name is required")
		}
		if _, exists := store.byName[group.Name]; exists {
			return nil, fmt.Errorf("window: duplicate group %q", group.Name)
		}
		if len(group.Signals) == 0 {
			return nil, fmt.Errorf("window: group %q has no signals", group.Name)
		}
		if group.Capacity <= 0 {
			return nil, fmt.Errorf("window: group %q capacity must be positive, got %d", group.Name, group.Capacity)
		}
		if len(group.Colors) != 0 && len(group.Colors) != len(group.Signals) {
			return nil, fmt.Errorf("window: group %q has %d colors for %d signals", group.Name, len(group.Colors), len(group.Signals))
		}
		store.byName[group.Name] = len(store.groups)
		store.groups = append(store.groups, groupEntry{
			config: group,
			buffer: NewBuffer(group.Capacity, len(group.Signals)),
		})
	}
	return store, nil
}

// Push appends one point to the named group.
func (s *Store) Push(group string, time float64, values []float64) error {
	entry, err := s.lookup(group)
	if err != nil {
		return err
	}
	return entry.buffer.Push(time, values)
}

// Reset empties the named group's buffer.
func (s *Store) Reset(group string) error {
	entry, err := s.lookup(group)
	if err != nil {
		return err
	}
	entry.buffer.Reset()
	return nil
}

// ResetAll empties every buffer and forgets the session's last known
// values and missing-key warnings.
func (s *Store) ResetAll() {
	for _, entry := range s.groups {
		entry.buffer.Reset()
	}
	clear(s.lastKnown)
	clear(s.warned)
}

// Update pushes one point per group derived from smp.
func (s *Store) Update(smp sample.Sample) {
	for _, field := range smp.Fields {
		s.lastKnown[field.Name] = field.Value
	}

	for _, entry := range s.groups {
		time := s.resolve(entry.config.Name, s.timeKey, smp)
		values := make([]float64, len(entry.config.Signals))
		for i, signal := range entry.config.Signals {
			values[i] = s.resolve(entry.config.Name, signal, smp)
		}
		// Lengths always match the group's signal count.
		_ = entry.buffer.Push(time, values)
	}
}

// resolve returns key's value in smp or its sentinel, warning once per
// key per session when the sample lacks it.
func (s *Store) resolve(group, key string, smp sample.Sample) float64 {
	if value, ok := smp.Value(key); ok {
		return value
	}
	substitute := s.lastKnown[key]
	if _, done := s.warned[key]; !done {
		s.warned[key] = struct{}{}
		warning := MissingKeyWarning{Group: group, Key: key, Substitute: substitute}
		s.logger.Warn("signal missing from sample",
			"group", group,
			"key", key,
			"substitute", substitute,
		)
		if s.onMissing != nil {
			s.onMissing(warning)
		}
	}
	return substitute
}

// Snapshot returns a copy of the named group.
func (s *Store) Snapshot(group string) (Snapshot, error) {
	entry, err := s.lookup(group)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(entry), nil
}

// Snapshots returns a copy of every group in configuration order.
func (s *Store) Snapshots() []Snapshot {
	out := make([]Snapshot, len(s.groups))
	for i, entry := range s.groups {
		out[i] = snapshotOf(entry)
	}
	return out
}

// Groups returns the configured group names in order.
func (s *Store) Groups() []string {
	names := make([]string, len(s.groups))
	for i, entry := range s.groups {
		names[i] = entry.config.Name
	}
	return names
}

// TimeKey returns the x-axis field name.
func (s *Store) TimeKey() string { return s.timeKey }

func (s *Store) lookup(group string) (groupEntry, error) {
	index, ok := s.byName[group]
	if !ok {
		return groupEntry{}, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return s.groups[index], nil
}

func snapshotOf(entry groupEntry) Snapshot {
	config := entry.config
	values := make([][]float64, len(config.Signals))
	for i := range values {
		values[i] = entry.buffer.Values(i)
	}
	return Snapshot{
		Group:    config.Name,
		Title:    config.Title,
		XLabel:   config.XLabel,
		YLabel:   config.YLabel,
		Limits:   config.Limits,
		Colors:   append([]string(nil), config.Colors...),
		Capacity: entry.buffer.Cap(),
		Signals:  append([]string(nil), config.Signals...),
		Times:    entry.buffer.Times(),
		Values:   values,
	}
}
