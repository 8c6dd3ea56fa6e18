// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/metrics"
	"github.com/bureau-foundation/plotline/lib/netutil"
	"github.com/bureau-foundation/plotline/lib/sample"
)

const (
	// DefaultNetwork matches the instrument's stock transport.
	DefaultNetwork = "udp"

	// DefaultIOTimeout bounds every blocking read, and therefore how
	// long a reader can go without noticing Stop.
	DefaultIOTimeout = time.Second

	streamReadSize = 64 << 10
)

// Sink receives decoded samples. Push must not block.
// *transfer.Channel satisfies it.
type Sink interface {
	Push(sample.Sample) (evicted bool)
}

// Config configures a Server.
type Config struct {
	// Network is tcp, tcp4, tcp6, unix, udp, udp4, udp6, or unixgram.
	// Empty selects DefaultNetwork.
	Network string

	// IOTimeout defaults to DefaultIOTimeout.
	IOTimeout time.Duration

	// MaxPayloadLength caps a frame's payload. Zero selects
	// sample.DefaultMaxPayloadLength.
	MaxPayloadLength int

	// ReadBufferBytes sets the socket receive buffer when positive.
	ReadBufferBytes int

	// Clock stamps arrivals. Nil selects the real clock.
	Clock clock.Clock

	// OnConnectionError, if set, is called for every ConnectionError.
	OnConnectionError func(*ConnectionError)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server reads frames from one listening endpoint.
type Server struct {
	network    string
	ioTimeout  time.Duration
	maxPayload int
	socket     netutil.SocketOptions
	clock      clock.Clock
	sink       Sink
	onError    func(*ConnectionError)
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	packet   net.PacketConn
	conns    map[net.Conn]struct{}
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
	readers  sync.WaitGroup
}

// New returns a Server delivering to sink.
func New(config Config, sink Sink) *Server {
	network := config.Network
	if network == "" {
		network = DefaultNetwork
	}
	ioTimeout := config.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	maxPayload := config.MaxPayloadLength
	if maxPayload <= 0 {
		maxPayload = sample.DefaultMaxPayloadLength
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		network:    network,
		ioTimeout:  ioTimeout,
		maxPayload: maxPayload,
		socket:     netutil.SocketOptions{ReadBufferBytes: config.ReadBufferBytes},
		clock:      clk,
		sink:       sink,
		onError:    config.OnConnectionError,
		metrics:    config.Metrics,
		logger:     logger.With("network", network),
		conns:      make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
	}
}

// Listen binds the endpoint. Any failure is a *BindError.
func (s *Server) Listen(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return &BindError{Network: s.network, Address: address, Err: ErrStopped}
	}
	if s.listener != nil || s.packet != nil {
		return &BindError{Network: s.network, Address: address, Err: errors.New("already listening")}
	}

	ctx := context.Background()
	switch {
	case netutil.IsStreamNetwork(s.network):
		listener, err := netutil.Listen(ctx, s.network, address, s.socket)
		if err != nil {
			return &BindError{Network: s.network, Address: address, Err: err}
		}
		s.listener = listener
	case netutil.IsPacketNetwork(s.network):
		packet, err := netutil.ListenPacket(ctx, s.network, address, s.socket)
		if err != nil {
			return &BindError{Network: s.network, Address: address, Err: err}
		}
		s.packet = packet
	default:
		return &BindError{Network: s.network, Address: address, Err: fmt.Errorf("unsupported network %q", s.network)}
	}
	s.logger.Info("ingest listening", "address", s.addrLocked())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrLocked()
}

func (s *Server) addrLocked() net.Addr {
	switch {
	case s.listener != nil:
		return s.listener.Addr()
	case s.packet != nil:
		return s.packet.LocalAddr()
	}
	return nil
}

// Connections returns the number of stream connections being read.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Start binds address and serves until ctx is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context, address string) error {
	if err := s.Listen(address); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve reads from the bound endpoint until ctx is cancelled or Stop
// is called, then returns nil once every reader has exited.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener, packet, stopped := s.listener, s.packet, s.stopped
	// The datagram reader runs on this goroutine; Stop joins it like a
	// stream reader.
	readsPackets := !stopped && listener == nil && packet != nil
	if readsPackets {
		s.readers.Add(1)
	}
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if listener == nil && packet == nil {
		return ErrNotListening
	}

	// Cancellation stops the server; Stop releases this goroutine.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	defer func() {
		s.Stop()
		<-watcherDone
	}()

	if listener != nil {
		return s.acceptLoop(listener)
	}
	defer s.readers.Done()
	s.readPackets(packet)
	return nil
}

// Stop closes the endpoint and every active connection, then waits for
// all readers to exit. It is safe to call more than once and from any
// goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.packet != nil {
			s.packet.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.logger.Info("ingest stopping")
	})
	s.readers.Wait()
}

func (s *Server) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Server) acceptLoop(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				s.readers.Wait()
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			// Back off briefly so a persistent error (EMFILE) does
			// not spin.
			select {
			case <-s.done:
			case <-s.clock.After(10 * time.Millisecond):
			}
			continue
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		go s.readStream(conn)
	}
}

// track registers conn and its reader. It refuses once Stop has begun
// so the reader group never grows while Stop is waiting on it.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	s.readers.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.readers.Done()
}

func (s *Server) readStream(conn net.Conn) {
	defer s.untrack(conn)

	remote := remoteName(conn.RemoteAddr())
	logger := s.logger.With("remote", remote)
	logger.Info("producer connected")
	s.metrics.ConnectionOpened()

	parser := sample.NewParser(s.maxPayload)
	buffer := make([]byte, streamReadSize)
	for {
		conn.SetReadDeadline(time.Now().Add(s.ioTimeout))
		n, err := conn.Read(buffer)
		if n > 0 {
			samples, decodeErrors := parser.Feed(buffer[:n], s.clock.Now())
			s.deliver(logger, samples, decodeErrors)
		}
		if err == nil {
			continue
		}
		if netutil.IsTimeout(err) && !s.stopping() {
			continue
		}

		if s.stopping() || (netutil.IsExpectedCloseError(err) && parser.Buffered() == 0) {
			logger.Info("producer disconnected")
			s.metrics.ConnectionClosed(false)
			return
		}

		cause := err
		if netutil.IsExpectedCloseError(err) {
			cause = ErrTruncatedFrame
		}
		connectionError := &ConnectionError{Remote: remote, Buffered: parser.Buffered(), Err: cause}
		logger.Warn("producer connection failed", "error", connectionError, "buffered", parser.Buffered())
		s.metrics.ConnectionClosed(true)
		if s.onError != nil {
			s.onError(connectionError)
		}
		return
	}
}

func (s *Server) readPackets(packet net.PacketConn) {
	buffer := make([]byte, sample.HeaderLength+s.maxPayload)
	for {
		packet.SetReadDeadline(time.Now().Add(s.ioTimeout))
		n, from, err := packet.ReadFrom(buffer)
		if n > 0 {
			smp, decodeErr := sample.DecodeFrame(buffer[:n], s.clock.Now(), s.maxPayload)
			if decodeErr != nil {
				s.deliver(s.logger.With("remote", remoteName(from)), nil, []error{decodeErr})
			} else {
				s.deliver(s.logger, []sample.Sample{smp}, nil)
			}
		}
		if err == nil {
			continue
		}
		if s.stopping() {
			return
		}
		if netutil.IsTimeout(err) {
			continue
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		s.logger.Warn("datagram read failed", "error", err)
	}
}

func (s *Server) deliver(logger *slog.Logger, samples []sample.Sample, decodeErrors []error) {
	for _, err := range decodeErrors {
		s.metrics.DecodeError(s.network)
		logger.Warn("dropping undecodable bytes", "error", err)
	}
	for _, smp := range samples {
		s.metrics.FrameDecoded(s.network)
		s.sink.Push(smp)
	}
}

func remoteName(addr net.Addr) string {
	if addr == nil || addr.String() == "" {
		return "local"
	}
	return addr.String()
}
