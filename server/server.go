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

// Package server wires an Acceptor to a LoopThreadPool: it names and
// registers every accepted Connection, and is the embedding surface an
// application constructs directly.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/nabbar/reactor/buffer"
	"github.com/nabbar/reactor/config"
	"github.com/nabbar/reactor/conn"
	"github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/loop"
	"github.com/nabbar/reactor/socket"
)

// Server wires an Acceptor to a LoopThreadPool and owns the connection
// name -> Connection registry. The acceptor's own loop (the "base loop")
// is distinct from the worker loops connections are placed on.
type Server struct {
	opts config.Options
	log  logger.Logger

	base *loop.Loop
	pool *loop.Pool
	acc  *acceptor

	mu      sync.Mutex
	conns   map[string]*conn.Connection
	nextID  uint64
	started int32

	onConnection    func(c *conn.Connection)
	onMessage       func(c *conn.Connection, in *buffer.ByteBuffer, when int64)
	onWriteComplete func(c *conn.Connection)
	onThreadInit    func(l *loop.Loop)
}

// New constructs a Server bound to a caller-supplied base loop (the loop
// that will host the acceptor) and the given options. A positive
// opts.ThreadNum sizes the worker pool; SetThreadNum before Start
// replaces that size.
func New(base *loop.Loop, log logger.Logger, opts config.Options) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		opts:  opts,
		log:   log,
		base:  base,
		pool:  loop.NewPool(log),
		conns: make(map[string]*conn.Connection),
	}

	if opts.ThreadNum > 0 {
		s.pool.SetThreadNum(opts.ThreadNum)
	}

	acc, err := newAcceptor(opts.ListenAddr, opts.ReusePort, base, log)
	if err != nil {
		return nil, err
	}

	s.acc = acc
	s.acc.onNewConnection = s.newConnection

	return s, nil
}

// SetThreadNum sets the worker loop count. n == 0 means all connection
// I/O runs on the base loop. Must be called before Start.
func (s *Server) SetThreadNum(n int) {
	s.pool.SetThreadNum(n)
}

// SetConnectionCallback sets the callback invoked on every connection
// lifecycle transition (established and closed).
func (s *Server) SetConnectionCallback(fn func(c *conn.Connection)) {
	s.onConnection = fn
}

// SetMessageCallback sets the callback invoked after a successful read
// on any connection.
func (s *Server) SetMessageCallback(fn func(c *conn.Connection, in *buffer.ByteBuffer, when int64)) {
	s.onMessage = fn
}

// SetWriteCompleteCallback sets the callback invoked once a connection's
// output buffer fully drains.
func (s *Server) SetWriteCompleteCallback(fn func(c *conn.Connection)) {
	s.onWriteComplete = fn
}

// SetThreadInitCallback sets the callback invoked once per worker loop,
// on that loop's own thread, before it begins polling.
func (s *Server) SetThreadInitCallback(fn func(l *loop.Loop)) {
	s.onThreadInit = fn
}

// Start is idempotent: starts the worker pool, then enables the
// acceptor's listen on the base loop. A second call is a no-op.
func (s *Server) Start() {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return
	}

	s.pool.Start(s.onThreadInit)

	s.base.RunInLoop(func() {
		if err := s.acc.listen(); err != nil {
			s.log.Entry().WithError(err).Fatal("listen failed")
		}
	})
}

// Stop tears down every worker loop. The base loop's own shutdown is the
// caller's responsibility (it usually also drives other work).
func (s *Server) Stop() {
	s.pool.Stop()
}

func (s *Server) newConnection(sock *socket.Handle, peer net.Addr) {
	ioLoop := s.pool.NextLoop(s.base)

	s.mu.Lock()
	s.nextID++
	name := fmt.Sprintf("%s-%s#%d", s.opts.Name, peer.String(), s.nextID)
	s.mu.Unlock()

	local, err := sock.LocalAddr()
	if err != nil {
		s.log.Entry().WithError(err).WithField("conn", name).Warning("getsockname failed")
	}

	c := conn.New(name, sock, local, peer, ioLoop, s.log, s.opts)
	c.SetConnectionCallback(s.onConnection)
	c.SetMessageCallback(s.onMessage)
	c.SetWriteCompleteCallback(s.onWriteComplete)
	c.SetCloseCallback(s.removeConnection)

	s.mu.Lock()
	s.conns[name] = c
	s.mu.Unlock()

	ioLoop.RunInLoop(c.ConnectEstablished)
}

// removeConnection erases conn from the registry (dropping the server's
// strong reference) and schedules its final teardown on its own io loop;
// the closure capturing c keeps it alive until ConnectDestroyed runs.
func (s *Server) removeConnection(c *conn.Connection) {
	s.base.RunInLoop(func() {
		s.mu.Lock()
		delete(s.conns, c.Name())
		s.mu.Unlock()

		c.Loop().QueueInLoop(c.ConnectDestroyed)
	})
}

// Addr returns the acceptor's bound local address, useful when ListenAddr
// was given with an ephemeral port (":0").
func (s *Server) Addr() (net.Addr, error) {
	return s.acc.sock.LocalAddr()
}

// Connection returns the named connection, if still registered.
func (s *Server) Connection(name string) (*conn.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[name]
	return c, ok
}
