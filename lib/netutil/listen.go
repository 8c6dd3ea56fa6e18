// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// SocketOptions configures endpoints created by Listen and
// ListenPacket.
type SocketOptions struct {
	// ReadBufferBytes sets SO_RCVBUF when positive. Datagram
	// endpoints drop packets when this buffer overflows, so bursty
	// producers may need more than the kernel default.
	ReadBufferBytes int
}

// IsStreamNetwork reports whether network is connection-oriented.
func IsStreamNetwork(network string) bool {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
		return true
	}
	return false
}

// IsPacketNetwork reports whether network is datagram-oriented.
func IsPacketNetwork(network string) bool {
	switch network {
	case "udp", "udp4", "udp6", "unixgram":
		return true
	}
	return false
}

// Listen binds a stream endpoint. For unix sockets a stale socket file
// left by a previous process is removed first; any other file at the
// path is left alone and the bind fails.
func Listen(ctx context.Context, network, address string, options SocketOptions) (net.Listener, error) {
	if !IsStreamNetwork(network) {
		return nil, fmt.Errorf("netutil: %q is not a stream network", network)
	}
	if network == "unix" {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}
	config := listenConfig(network, options)
	return config.Listen(ctx, network, address)
}

// ListenPacket binds a datagram endpoint.
func ListenPacket(ctx context.Context, network, address string, options SocketOptions) (net.PacketConn, error) {
	if !IsPacketNetwork(network) {
		return nil, fmt.Errorf("netutil: %q is not a datagram network", network)
	}
	if network == "unixgram" {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}
	config := listenConfig(network, options)
	return config.ListenPacket(ctx, network, address)
}

func listenConfig(network string, options SocketOptions) net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, raw syscall.RawConn) error {
			var optionError error
			err := raw.Control(func(fd uintptr) {
				optionError = applySocketOptions(int(fd), network, options)
			})
			if err != nil {
				return err
			}
			return optionError
		},
	}
}

func applySocketOptions(fd int, network string, options SocketOptions) error {
	// Linux lets several UDP sockets share a port under SO_REUSEADDR,
	// which would hide a second collector's bind failure.
	if IsStreamNetwork(network) && network != "unix" {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("netutil: setting SO_REUSEADDR: %w", err)
		}
	}
	if options.ReadBufferBytes > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, options.ReadBufferBytes); err != nil {
			return fmt.Errorf("netutil: setting SO_RCVBUF to %d: %w", options.ReadBufferBytes, err)
		}
	}
	return nil
}

// ReadBufferSize returns the effective SO_RCVBUF of conn. Linux
// reports double the requested value to account for bookkeeping.
func ReadBufferSize(conn syscall.Conn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var optionError error
	err = raw.Control(func(fd uintptr) {
		size, optionError = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	if err != nil {
		return 0, err
	}
	return size, optionError
}

// removeStaleSocket removes path if it is a socket file. A missing
// path is fine.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("netutil: checking %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("netutil: %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("netutil: removing stale socket %s: %w", path, err)
	}
	return nil
}
