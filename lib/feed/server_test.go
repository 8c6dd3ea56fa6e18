// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/bureau-foundation/plotline/lib/metrics"
	"github.com/bureau-foundation/plotline/lib/sessionindex"
	"github.com/bureau-foundation/plotline/lib/testutil"
	"github.com/bureau-foundation/plotline/lib/window"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testView() *View {
	return &View{
		State: "connected",
		Sessions: SessionCounters{
			Opened:    2,
			Persisted: 1,
		},
		Channel: ChannelStats{Depth: 3, Capacity: 1024},
		Windows: []window.Snapshot{
			{Group: "control", Signals: []string{"control"}, Capacity: 5, Times: []float64{0, 1}, Values: [][]float64{{10, 20}}},
			{Group: "position", Signals: []string{"position", "reference"}, Capacity: 5, Times: []float64{}, Values: [][]float64{{}, {}}},
		},
	}
}

type fakeLister struct {
	entries []sessionindex.Entry
	limit   int
	err     error
}

func (f *fakeLister) List(_ context.Context, limit int) ([]sessionindex.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

// client does not pool connections, so no transport goroutines
// outlive a test.
var client = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

func get(t *testing.T, server *httptest.Server, path string) (int, []byte) {
	t.Helper()
	response, err := client.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return response.StatusCode, body
}

func newTestServer(t *testing.T, config ServerConfig) (*Publisher, *httptest.Server) {
	t.Helper()
	if config.Publisher == nil {
		config.Publisher = NewPublisher()
	}
	server := httptest.NewServer(NewServer(config).Handler())
	t.Cleanup(server.Close)
	return config.Publisher, server
}

func TestStatusBeforeFirstPublish(t *testing.T) {
	_, server := newTestServer(t, ServerConfig{})
	if status, _ := get(t, server, "/api/status"); status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

func TestStatusOmitsWindows(t *testing.T) {
	publisher, server := newTestServer(t, ServerConfig{})
	publisher.Publish(testView())

	status, body := get(t, server, "/api/status")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if _, present := decoded["windows"]; present {
		t.Error("status response includes windows")
	}
	if decoded["state"] != "connected" {
		t.Errorf("state = %v, want connected", decoded["state"])
	}
}

func TestWindowRoutes(t *testing.T) {
	publisher, server := newTestServer(t, ServerConfig{})
	publisher.Publish(testView())

	status, body := get(t, server, "/api/windows")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var all []window.Snapshot
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("decoding windows: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d windows, want 2", len(all))
	}

	status, body = get(t, server, "/api/windows/control")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var control window.Snapshot
	if err := json.Unmarshal(body, &control); err != nil {
		t.Fatalf("decoding window: %v", err)
	}
	if diff := cmp.Diff([][]float64{{10, 20}}, control.Values); diff != "" {
		t.Errorf("control values mismatch (-want +got):\n%s", diff)
	}

	if status, _ := get(t, server, "/api/windows/missing"); status != http.StatusNotFound {
		t.Errorf("unknown group status = %d, want 404", status)
	}
}

func TestSessionsRoute(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, server := newTestServer(t, ServerConfig{})
		if status, _ := get(t, server, "/api/sessions"); status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
	})

	t.Run("lists entries", func(t *testing.T) {
		lister := &fakeLister{entries: []sessionindex.Entry{{ID: 1, Path: "session-a.csv"}}}
		_, server := newTestServer(t, ServerConfig{Sessions: lister})
		status, body := get(t, server, "/api/sessions?limit=5")
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if lister.limit != 5 {
			t.Errorf("limit passed = %d, want 5", lister.limit)
		}
		if !strings.Contains(string(body), "session-a.csv") {
			t.Errorf("body = %s", body)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		_, server := newTestServer(t, ServerConfig{Sessions: &fakeLister{}})
		if status, _ := get(t, server, "/api/sessions?limit=x"); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("index failure", func(t *testing.T) {
		_, server := newTestServer(t, ServerConfig{Sessions: &fakeLister{err: errors.New("locked")}})
		if status, _ := get(t, server, "/api/sessions"); status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", status)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.SessionOpened()
	_, server := newTestServer(t, ServerConfig{Registry: registry})

	status, body := get(t, server, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), "plotline_session_opened_total 1") {
		t.Errorf("metrics body missing session counter:\n%s", body)
	}
}

func TestStreamPushesChangedViews(t *testing.T) {
	publisher := NewPublisher()
	publisher.Publish(testView())
	server := NewServer(ServerConfig{Publisher: publisher, PushInterval: 5 * time.Millisecond})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, listener) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+listener.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first View
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if first.Sequence != 1 || first.State != "connected" {
		t.Fatalf("first view = sequence %d state %q", first.Sequence, first.State)
	}

	next := testView()
	next.State = "disconnected"
	publisher.Publish(next)

	var second View
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if second.Sequence != 2 || second.State != "disconnected" {
		t.Fatalf("second view = sequence %d state %q; unchanged views must be skipped", second.Sequence, second.State)
	}

	cancel()
	if err := testutil.RequireReceive(t, served, 5*time.Second, "Serve did not return"); err != nil {
		t.Fatalf("Serve = %v", err)
	}
	// The server says goodbye with a close frame.
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want close going away", err)
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&output, &slog.HandlerOptions{Level: slog.LevelDebug}))
	publisher := NewPublisher()
	publisher.Publish(testView())
	handler := NewServer(ServerConfig{Publisher: publisher, Logger: logger}).Handler()

	for _, test := range []struct {
		path   string
		status int
	}{
		{"/api/status", http.StatusOK},
		{"/api/windows/missing", http.StatusNotFound},
	} {
		output.Reset()
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, test.path, nil))
		if recorder.Code != test.status {
			t.Fatalf("GET %s = %d, want %d", test.path, recorder.Code, test.status)
		}

		var record struct {
			Msg    string `json:"msg"`
			Path   string `json:"path"`
			Status int    `json:"status"`
		}
		if err := json.Unmarshal(output.Bytes(), &record); err != nil {
			t.Fatalf("decoding log record for %s: %v\n%s", test.path, err, output.String())
		}
		if record.Msg != "feed request" || record.Path != test.path || record.Status != test.status {
			t.Errorf("log record = %+v, want feed request for %s with status %d", record, test.path, test.status)
		}
	}
}

func TestResponseStatusForUpgrade(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/ws", nil)
	request.Header.Set("Connection", "Upgrade")
	request.Header.Set("Upgrade", "websocket")
	wrapped := middleware.NewWrapResponseWriter(httptest.NewRecorder(), request.ProtoMajor)
	if got := responseStatus(wrapped, request); got != http.StatusSwitchingProtocols {
		t.Errorf("unwritten upgrade status = %d, want 101", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	wrapped = middleware.NewWrapResponseWriter(httptest.NewRecorder(), plain.ProtoMajor)
	if got := responseStatus(wrapped, plain); got != http.StatusOK {
		t.Errorf("unwritten plain status = %d, want 200", got)
	}
}
