// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// plotline-top is a terminal view of a running collector. It reads
// the collector's websocket feed and draws every display group as
// coloured sparklines alongside the session state.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/plotline/lib/feed"
	"github.com/bureau-foundation/plotline/lib/netutil"
	"github.com/bureau-foundation/plotline/lib/process"
	"github.com/bureau-foundation/plotline/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		address     string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("plotline-top", pflag.ContinueOnError)
	flagSet.StringVar(&address, "address", "127.0.0.1:8081", "collector feed address (http.address in the collector config)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("plotline-top")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := fetchStatus(ctx, address)
	if err != nil {
		return err
	}

	streamURL := url.URL{Scheme: "ws", Host: address, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", streamURL.String(), err)
	}
	defer conn.Close()

	events := make(chan streamEvent, 1)
	go readStream(conn, events)

	program := tea.NewProgram(newModel(address, initial, events), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// fetchStatus reads /api/status once so an unreachable or misnamed
// collector fails before the terminal switches to the alternate
// screen.
func fetchStatus(ctx context.Context, address string) (*feed.View, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	statusURL := url.URL{Scheme: "http", Host: address, Path: "/api/status"}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL.String(), nil)
	if err != nil {
		return nil, err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("querying collector at %s: %w", address, err)
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		// The consumer has not published yet; the stream will.
		return nil, nil
	default:
		return nil, fmt.Errorf("collector status: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var view feed.View
	if err := netutil.DecodeResponse(response.Body, &view); err != nil {
		return nil, fmt.Errorf("decoding collector status: %w", err)
	}
	return &view, nil
}

// streamEvent is one frame from the feed, or the error that ended it.
type streamEvent struct {
	view *feed.View
	err  error
}

// readStream delivers views until the connection fails, then sends
// the terminal error and closes events.
func readStream(conn *websocket.Conn, events chan<- streamEvent) {
	defer close(events)
	for {
		var view feed.View
		if err := conn.ReadJSON(&view); err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				err = errCollectorClosed
			}
			events <- streamEvent{err: err}
			return
		}
		events <- streamEvent{view: &view}
	}
}

var errCollectorClosed = errors.New("collector closed the feed")
