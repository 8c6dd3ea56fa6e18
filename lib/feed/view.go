// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/plotline/lib/window"
)

// View is an immutable picture of the collector at one instant. The
// consumer builds a fresh View for every publish; nothing mutates it
// afterwards.
type View struct {
	// Sequence increases by one per publish.
	Sequence    uint64    `json:"sequence"`
	GeneratedAt time.Time `json:"generated_at"`

	State    string       `json:"state"`
	LastSeen time.Time    `json:"last_seen,omitzero"`
	Session  *SessionInfo `json:"session,omitempty"`

	Sessions SessionCounters `json:"sessions"`
	Channel  ChannelStats    `json:"channel"`

	Windows []window.Snapshot `json:"windows,omitempty"`
}

// SessionInfo describes the open session.
type SessionInfo struct {
	Start   time.Time `json:"start"`
	Samples int       `json:"samples"`
}

// SessionCounters summarises sessions since startup.
type SessionCounters struct {
	Opened    int    `json:"opened"`
	Persisted int    `json:"persisted"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	LastFile  string `json:"last_file,omitempty"`
}

// ChannelStats reports the transfer channel.
type ChannelStats struct {
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
}

// Window returns the snapshot for group, if present.
func (v *View) Window(group string) (window.Snapshot, bool) {
	for _, snapshot := range v.Windows {
		if snapshot.Group == group {
			return snapshot, true
		}
	}
	return window.Snapshot{}, false
}

// Publisher holds the latest View. One goroutine publishes; any number
// read.
type Publisher struct {
	current  atomic.Pointer[View]
	sequence uint64

	mu      sync.Mutex
	changed chan struct{}
}

// NewPublisher returns a Publisher holding no View.
func NewPublisher() *Publisher {
	return &Publisher{changed: make(chan struct{})}
}

// Publish stores view as the latest and wakes every Changed waiter.
// The caller must not modify view afterwards.
func (p *Publisher) Publish(view *View) {
	p.mu.Lock()
	p.sequence++
	view.Sequence = p.sequence
	p.current.Store(view)
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Load returns the latest View, or nil before the first Publish.
func (p *Publisher) Load() *View {
	return p.current.Load()
}

// Changed returns a channel closed by the next Publish.
func (p *Publisher) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}
