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

// Package conn implements the per-connection state machine: a
// Connecting -> Connected -> Disconnecting -> Disconnected lifecycle
// driving a level-triggered read/write pump over a pair of ByteBuffers,
// with high-water-mark backpressure and idempotent teardown.
package conn

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/buffer"
	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/config"
	"github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/socket"
)

// State is a Connection's position in its lifecycle.
type State int32

const (
	// Connecting is the initial state, before connectEstablished runs.
	Connecting State = iota
	// Connected is the steady state: reads and writes are live.
	Connected
	// Disconnecting means shutdown was requested but output is still
	// draining.
	Disconnecting
	// Disconnected is terminal.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// loop is the subset of *loop.Loop a Connection depends on, narrowed to
// avoid an import cycle (loop doesn't know about conn).
type loop interface {
	channel.Updater
	RunInLoop(fn func())
	QueueInLoop(fn func())
	IsInLoopThread() bool
}

// Connection is a single established TCP session.
type Connection struct {
	name string
	sock *socket.Handle
	ch   *channel.Channel
	lp   loop

	local net.Addr
	peer  net.Addr

	state int32

	input  *buffer.ByteBuffer
	output *buffer.ByteBuffer

	highWaterMark uint64
	faultError    bool

	log logger.Logger

	onConnection    func(c *Connection)
	onMessage       func(c *Connection, in *buffer.ByteBuffer, when int64)
	onWriteComplete func(c *Connection)
	onHighWater     func(c *Connection, size uint64)
	onClose         func(c *Connection)

	alive int32
}

// New constructs a Connection over an already-accepted socket, bound to
// ioLoop. It starts in Connecting; the caller must run connectEstablished
// on ioLoop before any I/O occurs.
func New(name string, sock *socket.Handle, local, peer net.Addr, ioLoop loop, log logger.Logger, opts config.Options) *Connection {
	if log == nil {
		log = logger.Discard()
	}

	c := &Connection{
		name:          name,
		sock:          sock,
		lp:            ioLoop,
		local:         local,
		peer:          peer,
		state:         int32(Connecting),
		input:         buffer.New(),
		output:        buffer.New(),
		highWaterMark: opts.HighWaterMark,
		log:           log,
		alive:         1,
	}

	c.ch = channel.New(sock.Fd(), ioLoop)
	c.ch.Tie(c)
	c.ch.OnRead(c.handleRead)
	c.ch.OnWrite(c.handleWrite)
	c.ch.OnClose(c.handleClose)
	c.ch.OnError(c.handleError)

	return c
}

// Upgrade implements channel.Owner: the channel's lifetime tie upgrades
// to this Connection as long as it has not yet run connectDestroyed.
func (c *Connection) Upgrade() (interface{}, bool) {
	if atomic.LoadInt32(&c.alive) == 0 {
		return nil, false
	}

	return c, true
}

// Name returns the connection's unique name, e.g. "echo-127.0.0.1:9000#3".
func (c *Connection) Name() string {
	return c.name
}

// Loop returns the loop this connection is bound to, so callers routing
// a cross-thread teardown know where ConnectDestroyed must run.
func (c *Connection) Loop() interface {
	RunInLoop(fn func())
	QueueInLoop(fn func())
	IsInLoopThread() bool
} {
	return c.lp
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Connected reports whether the connection is in the Connected state.
func (c *Connection) Connected() bool {
	return c.State() == Connected
}

// Disconnected reports whether the connection is in the Disconnected
// state.
func (c *Connection) Disconnected() bool {
	return c.State() == Disconnected
}

// LocalAddr returns the connection's local endpoint.
func (c *Connection) LocalAddr() net.Addr {
	return c.local
}

// PeerAddr returns the connection's remote endpoint.
func (c *Connection) PeerAddr() net.Addr {
	return c.peer
}

// SetTcpNoDelay toggles TCP_NODELAY on the underlying socket.
func (c *Connection) SetTcpNoDelay(on bool) error {
	return c.sock.SetNoDelay(on)
}

// StartRead enables read interest, scheduled on the owning loop.
func (c *Connection) StartRead() {
	c.lp.RunInLoop(func() { c.ch.EnableReading() })
}

// StopRead disables read interest, scheduled on the owning loop.
func (c *Connection) StopRead() {
	c.lp.RunInLoop(func() { c.ch.DisableReading() })
}

// SetConnectionCallback sets the callback invoked on every lifecycle
// transition relevant to the user: established and closed.
func (c *Connection) SetConnectionCallback(fn func(c *Connection)) {
	c.onConnection = fn
}

// SetMessageCallback sets the callback invoked after a successful read.
func (c *Connection) SetMessageCallback(fn func(c *Connection, in *buffer.ByteBuffer, when int64)) {
	c.onMessage = fn
}

// SetWriteCompleteCallback sets the callback invoked once the output
// buffer fully drains after having had data queued.
func (c *Connection) SetWriteCompleteCallback(fn func(c *Connection)) {
	c.onWriteComplete = fn
}

// SetHighWaterMarkCallback sets the callback invoked once, on the edge
// where queued output crosses the high-water mark.
func (c *Connection) SetHighWaterMarkCallback(fn func(c *Connection, size uint64)) {
	c.onHighWater = fn
}

// SetCloseCallback sets the callback invoked once the connection has
// fully torn down, routing up to the server's connection registry.
func (c *Connection) SetCloseCallback(fn func(c *Connection)) {
	c.onClose = fn
}

// connectEstablished transitions Connecting -> Connected, enables
// reading, and fires the connection callback. Must run on the owning
// loop.
func (c *Connection) connectEstablished() {
	if State(atomic.LoadInt32(&c.state)) != Connecting {
		return
	}

	atomic.StoreInt32(&c.state, int32(Connected))
	c.ch.EnableReading()

	if c.onConnection != nil {
		c.onConnection(c)
	}
}

// ConnectEstablished is the exported entry point the server schedules
// via ioLoop.RunInLoop(conn.ConnectEstablished) once a Connection has
// been registered.
func (c *Connection) ConnectEstablished() {
	c.connectEstablished()
}

func (c *Connection) handleRead(when int64) {
	n, err := c.input.ReadFromFd(c.ch.Fd())

	switch {
	case n > 0:
		if c.onMessage != nil {
			c.onMessage(c, c.input, when)
		}
	case n == 0:
		c.handleClose()
	default:
		c.log.Entry().WithError(err).WithField("conn", c.name).Warning("read failed")
		c.handleError()
	}
}

func (c *Connection) handleWrite() {
	if !c.ch.IsWriting() {
		c.log.Entry().WithField("conn", c.name).Debug("write handler invoked with no write interest")
		return
	}

	n, err := c.output.WriteToFd(c.ch.Fd())
	if n > 0 {
		c.output.Retrieve(n)

		if c.output.ReadableBytes() == 0 {
			c.ch.DisableWriting()

			if c.onWriteComplete != nil {
				cb := c.onWriteComplete
				c.lp.RunInLoop(func() { cb(c) })
			}

			if State(atomic.LoadInt32(&c.state)) == Disconnecting {
				c.shutdownInLoop()
			}
		}

		return
	}

	c.log.Entry().WithError(err).WithField("conn", c.name).Warning("write failed")
}

func (c *Connection) handleClose() {
	if State(atomic.LoadInt32(&c.state)) == Disconnected {
		return
	}

	atomic.StoreInt32(&c.state, int32(Disconnected))
	c.ch.DisableAll()

	self := c
	if self.onConnection != nil {
		self.onConnection(self)
	}

	if self.onClose != nil {
		self.onClose(self)
	}
}

func (c *Connection) handleError() {
	if err := c.sock.SoError(); err != nil {
		c.log.Entry().WithError(err).WithField("conn", c.name).Warning("socket error")
	}
}

// Send schedules data for transmission. A no-op once the connection is
// no longer Connected. Safe to call from any thread: data is copied
// before crossing to the owning loop.
func (c *Connection) Send(data []byte) {
	if State(atomic.LoadInt32(&c.state)) != Connected {
		return
	}

	if c.lp.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	c.lp.RunInLoop(func() { c.sendInLoop(cp) })
}

func (c *Connection) sendInLoop(data []byte) {
	if State(atomic.LoadInt32(&c.state)) == Disconnecting {
		c.log.Entry().WithField("conn", c.name).Debug("send while disconnecting, dropped")
		return
	}

	var n int
	remaining := len(data)
	fault := false

	if !c.ch.IsWriting() && c.output.ReadableBytes() == 0 {
		written, err := unix.Write(c.ch.Fd(), data)

		switch {
		case err == nil:
			n = written
			remaining = len(data) - n

			if remaining == 0 && c.onWriteComplete != nil {
				cb := c.onWriteComplete
				c.lp.RunInLoop(func() { cb(c) })
			}
		case err == unix.EWOULDBLOCK || err == unix.EAGAIN:
			n = 0
		case err == unix.EPIPE || err == unix.ECONNRESET:
			fault = true
			c.faultError = true
		default:
			n = 0
			c.log.Entry().WithError(err).WithField("conn", c.name).Warning("direct write failed")
		}
	}

	if fault || remaining <= 0 {
		return
	}

	oldLen := uint64(c.output.ReadableBytes())
	newLen := oldLen + uint64(remaining)

	if oldLen < c.highWaterMark && newLen > c.highWaterMark && c.onHighWater != nil {
		cb := c.onHighWater
		c.lp.RunInLoop(func() { cb(c, newLen) })
	}

	c.output.Append(data[n:])

	if !c.ch.IsWriting() {
		c.ch.EnableWriting()
	}
}

// Shutdown half-closes the connection. If output is already drained, the
// socket's write side closes immediately; otherwise shutdownWrite is
// deferred until handleWrite observes an empty output buffer.
func (c *Connection) Shutdown() {
	c.lp.RunInLoop(func() {
		if State(atomic.LoadInt32(&c.state)) != Connected {
			return
		}

		atomic.StoreInt32(&c.state, int32(Disconnecting))

		if !c.ch.IsWriting() {
			c.shutdownInLoop()
		}
	})
}

func (c *Connection) shutdownInLoop() {
	if err := c.sock.ShutdownWrite(); err != nil {
		c.log.Entry().WithError(err).WithField("conn", c.name).Debug("shutdownWrite failed")
	}
}

// ConnectDestroyed is the final teardown step, scheduled on the owning
// loop once the server registry has dropped its reference. Idempotent:
// only the first call removes the channel and closes the socket; later
// calls return at once. A connection already Disconnected (the common
// path, via handleClose) skips the defensive re-entry branch.
func (c *Connection) ConnectDestroyed() {
	if !atomic.CompareAndSwapInt32(&c.alive, 1, 0) {
		return
	}

	if State(atomic.LoadInt32(&c.state)) == Connected {
		atomic.StoreInt32(&c.state, int32(Disconnected))
		c.ch.DisableAll()

		if c.onConnection != nil {
			c.onConnection(c)
		}
	}

	c.ch.Remove()
	_ = c.sock.Close()
}
