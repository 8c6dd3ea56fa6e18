// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/plotline/lib/feed"
	"github.com/bureau-foundation/plotline/lib/window"
)

const defaultWidth = 80

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#dbe8c1")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#fadf7f"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#cf7171"))
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

type viewMsg struct {
	view *feed.View
}

type streamEndedMsg struct {
	err error
}

type model struct {
	address string
	events  <-chan streamEvent

	view   *feed.View
	ended  error
	width  int
	paused bool
}

func newModel(address string, initial *feed.View, events <-chan streamEvent) model {
	return model{address: address, events: events, view: initial, width: defaultWidth}
}

func (m model) Init() tea.Cmd {
	return listenForView(m.events)
}

// listenForView blocks until the stream yields a frame.
func listenForView(events <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamEndedMsg{}
		}
		if event.err != nil {
			return streamEndedMsg{err: event.err}
		}
		return viewMsg{view: event.view}
	}
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, keys.Quit):
			return m, tea.Quit
		case key.Matches(message, keys.Pause):
			m.paused = !m.paused
		}
	case tea.WindowSizeMsg:
		m.width = message.Width
	case viewMsg:
		// Frames received while paused are consumed and discarded.
		if !m.paused {
			m.view = message.view
		}
		return m, listenForView(m.events)
	case streamEndedMsg:
		if message.err != nil {
			m.ended = message.err
		} else {
			m.ended = errCollectorClosed
		}
	}
	return m, nil
}

func (m model) View() string {
	var builder strings.Builder
	builder.WriteString(titleStyle.Render("plotline " + m.address))
	builder.WriteString("\n")

	if m.view == nil {
		builder.WriteString(labelStyle.Render("waiting for the collector to publish"))
	} else {
		builder.WriteString(renderStatus(m.view))
		for _, snapshot := range m.view.Windows {
			builder.WriteString(sectionStyle.Render(renderGroup(snapshot, m.width)))
		}
	}

	builder.WriteString("\n")
	if m.ended != nil {
		builder.WriteString(errorStyle.Render("feed ended: " + m.ended.Error()))
		builder.WriteString("\n")
	}
	if m.paused {
		builder.WriteString(idleStyle.Render("paused") + "  ")
	}
	builder.WriteString(labelStyle.Render(keys.helpLine()))
	return builder.String()
}

func renderStatus(view *feed.View) string {
	state := idleStyle.Render(view.State)
	if view.Session != nil {
		state = activeStyle.Render(view.State) + fmt.Sprintf(" since %s, %d samples",
			view.Session.Start.Local().Format(time.TimeOnly), view.Session.Samples)
	}

	lines := []string{
		labelStyle.Render("producer ") + state,
		labelStyle.Render("sessions ") + fmt.Sprintf("%d opened, %d saved, %d failed, %d pending",
			view.Sessions.Opened, view.Sessions.Persisted, view.Sessions.Failed, view.Sessions.Pending),
		labelStyle.Render("channel  ") + fmt.Sprintf("%d/%d queued, %d received, %d dropped",
			view.Channel.Depth, view.Channel.Capacity, view.Channel.Pushed, view.Channel.Dropped),
	}
	if view.Sessions.LastFile != "" {
		lines = append(lines, labelStyle.Render("last     ")+view.Sessions.LastFile)
	}
	return strings.Join(lines, "\n")
}

// renderGroup draws one line per signal: name, latest value, and a
// sparkline scaled to the group's limits.
func renderGroup(snapshot window.Snapshot, width int) string {
	title := snapshot.Title
	if title == "" {
		title = snapshot.Group
	}
	header := titleStyle.Render(title)
	if snapshot.YLabel != "" {
		header += labelStyle.Render("  " + snapshot.YLabel)
	}
	lines := []string{header}

	nameWidth := 0
	for _, name := range snapshot.Signals {
		nameWidth = max(nameWidth, len(name))
	}
	plotWidth := max(width-nameWidth-14, 8)

	for i, name := range snapshot.Signals {
		values := snapshot.Values[i]
		latest := "-"
		if len(values) > 0 {
			latest = fmt.Sprintf("%.6g", values[len(values)-1])
		}
		style := lipgloss.NewStyle()
		if i < len(snapshot.Colors) {
			style = style.Foreground(lipgloss.Color(snapshot.Colors[i]))
		}
		lines = append(lines, fmt.Sprintf("%-*s %10s %s",
			nameWidth, name, latest,
			style.Render(sparkline(values, plotWidth, snapshot.Limits[0], snapshot.Limits[1]))))
	}
	return strings.Join(lines, "\n")
}
