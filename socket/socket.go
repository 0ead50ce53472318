/*
MIT License

Copyright (c) 2019 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package socket owns the non-blocking IPv4 TCP fd surface the rest of the
// reactor core builds on: bind/listen/accept with the atomic
// non-blocking+cloexec accept4 variant, half-close, and the handful of
// option toggles a TCP server needs.
package socket

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/errors"
)

// Handle owns exactly one fd: a listening socket or an accepted
// connection. Closing it is the only way the fd is released.
type Handle struct {
	fd int
}

// NewListener creates a non-blocking, close-on-exec IPv4 TCP socket. It
// does not bind or listen; call Bind and Listen on the result.
func NewListener() (*Handle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.CodeFatalSetup.Error(err)
	}

	return &Handle{fd: fd}, nil
}

// FromFd wraps an already-created fd, e.g. one returned by Accept.
func FromFd(fd int) *Handle {
	return &Handle{fd: fd}
}

// Fd returns the underlying file descriptor.
func (h *Handle) Fd() int {
	return h.fd
}

// Close releases the fd. Safe to call once; the fd is not reusable
// afterward.
func (h *Handle) Close() error {
	return unix.Close(h.fd)
}

// Bind binds the socket to addr ("ip:port" or ":port" for INADDR_ANY).
func (h *Handle) Bind(addr string) error {
	sa, err := sockaddr(addr)
	if err != nil {
		return errors.CodeFatalSetup.Error(err)
	}

	if err = unix.Bind(h.fd, sa); err != nil {
		return errors.CodeFatalSetup.Error(err)
	}

	return nil
}

// Listen marks the socket as a listening socket with the given backlog.
// A backlog <= 0 defaults to 1024.
func (h *Handle) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = 1024
	}

	if err := unix.Listen(h.fd, backlog); err != nil {
		return errors.CodeFatalSetup.Error(err)
	}

	return nil
}

// Accept accepts one pending connection, atomically setting
// non-blocking + close-on-exec on the returned fd. On EMFILE the caller
// is expected to log the condition and continue; this call does not
// retry.
func (h *Handle) Accept() (*Handle, net.Addr, error) {
	connFd, sa, err := unix.Accept4(h.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EMFILE {
			return nil, nil, errors.CodeAcceptLimit.Error(err)
		}

		return nil, nil, errors.CodeAcceptOther.Error(err)
	}

	return &Handle{fd: connFd}, sockaddrToAddr(sa), nil
}

// ShutdownWrite half-closes the write side, signalling FIN to the peer
// while the read side stays open.
func (h *Handle) ShutdownWrite() error {
	return unix.Shutdown(h.fd, unix.SHUT_WR)
}

// LocalAddr returns the address this fd is locally bound to, e.g. the
// listener's ephemeral port or an accepted connection's local endpoint.
func (h *Handle) LocalAddr() (net.Addr, error) {
	sa, err := unix.Getsockname(h.fd)
	if err != nil {
		return nil, err
	}

	return sockaddrToAddr(sa), nil
}

// SetReuseAddr toggles SO_REUSEADDR.
func (h *Handle) SetReuseAddr(on bool) error {
	return unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// SetReusePort toggles SO_REUSEPORT, letting multiple sockets share one
// address.
func (h *Handle) SetReusePort(on bool) error {
	return unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// SetNoDelay toggles TCP_NODELAY, disabling Nagle's algorithm.
func (h *Handle) SetNoDelay(on bool) error {
	return unix.SetsockoptInt(h.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// SetKeepAlive toggles SO_KEEPALIVE.
func (h *Handle) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

// SoError reads and clears SO_ERROR, used by the connection's error
// handler to discover what went wrong after an error-bit readiness
// notification.
func (h *Handle) SoError() error {
	errno, err := unix.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}

	return unix.Errno(errno)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
