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

// Package channel implements the per-fd event subscription and dispatch
// object that mediates between a loop's readiness demultiplexer and
// handler code, including the weak lifetime tie that keeps a pending
// event from resurrecting a torn-down owner.
package channel

import "golang.org/x/sys/unix"

// Interest is a bitset over the readiness conditions a Channel subscribes
// to.
type Interest uint32

const (
	// Readable subscribes to POLLIN|POLLPRI.
	Readable Interest = unix.POLLIN | unix.POLLPRI
	// Writable subscribes to POLLOUT.
	Writable Interest = unix.POLLOUT
	// none is the empty interest set, used to detect "channel wants
	// nothing" for demux bookkeeping.
	none Interest = 0
)

// IndexState tracks a Channel's membership in a ReadinessDemux.
type IndexState int

const (
	// New means the channel has never been added to any demux.
	New IndexState = -1
	// Added means the channel is currently registered with the kernel.
	Added IndexState = 1
	// Deleted means the channel was added and then had its interest
	// dropped to none; the kernel registration is gone (DEL) but the
	// demux keeps it mapped, and a future re-add issues a fresh ADD.
	Deleted IndexState = 2
)

// Updater is the subset of EventLoop a Channel needs to propagate an
// interest change: forward it to the owning loop's demux.
type Updater interface {
	UpdateChannel(ch *Channel)
	RemoveChannel(ch *Channel)
}

// Owner is the weakly-tied object a Channel dispatches into. Connection
// implements it.
type Owner interface {
	// Upgrade attempts to obtain a strong reference for the dispatch
	// window; ok is false if the owner is already gone.
	Upgrade() (strong interface{}, ok bool)
}

// Channel is the per-fd event subscription and dispatch object. Every
// method must run on the owning loop's thread; the core itself never
// locks a Channel.
type Channel struct {
	fd       int
	events   Interest
	revents  Interest
	index    IndexState
	updater  Updater
	tie      Owner
	tied     bool

	readCb  func(when int64)
	writeCb func()
	closeCb func()
	errorCb func()
}

// New creates a Channel for fd, initially subscribed to nothing. Interest
// changes are forwarded to updater; a nil updater makes them local only.
func New(fd int, updater Updater) *Channel {
	return &Channel{
		fd:      fd,
		index:   New,
		updater: updater,
	}
}

// Fd returns the channel's file descriptor.
func (c *Channel) Fd() int {
	return c.fd
}

// Index returns the channel's current demux membership state.
func (c *Channel) Index() IndexState {
	return c.index
}

// SetIndex is called only by the ReadinessDemux that owns this channel.
func (c *Channel) SetIndex(idx IndexState) {
	c.index = idx
}

// Events returns the interest mask currently requested.
func (c *Channel) Events() Interest {
	return c.events
}

// IsNoneEvent reports whether the channel currently wants nothing.
func (c *Channel) IsNoneEvent() bool {
	return c.events == none
}

// SetRevents records the readiness mask the demux delivered for this
// channel in the current poll iteration.
func (c *Channel) SetRevents(r Interest) {
	c.revents = r
}

// OnRead sets the read callback, invoked with the loop's poll-return
// timestamp (unix nanoseconds).
func (c *Channel) OnRead(fn func(when int64)) {
	c.readCb = fn
}

// OnWrite sets the write-ready callback.
func (c *Channel) OnWrite(fn func()) {
	c.writeCb = fn
}

// OnClose sets the hangup callback.
func (c *Channel) OnClose(fn func()) {
	c.closeCb = fn
}

// OnError sets the error-bit callback.
func (c *Channel) OnError(fn func()) {
	c.errorCb = fn
}

// EnableReading adds Readable to the interest set and pushes the change
// to the demux.
func (c *Channel) EnableReading() {
	c.events |= Readable
	c.update()
}

// DisableReading removes Readable from the interest set.
func (c *Channel) DisableReading() {
	c.events &^= Readable
	c.update()
}

// EnableWriting adds Writable to the interest set.
func (c *Channel) EnableWriting() {
	c.events |= Writable
	c.update()
}

// DisableWriting removes Writable from the interest set.
func (c *Channel) DisableWriting() {
	c.events &^= Writable
	c.update()
}

// IsWriting reports whether Writable is currently requested.
func (c *Channel) IsWriting() bool {
	return c.events&Writable != 0
}

// DisableAll clears every interest bit.
func (c *Channel) DisableAll() {
	c.events = none
	c.update()
}

func (c *Channel) update() {
	if c.updater != nil {
		c.updater.UpdateChannel(c)
	}
}

// Remove deregisters the channel from the demux. The caller must have
// already cleared all interest (DisableAll).
func (c *Channel) Remove() {
	if c.updater != nil {
		c.updater.RemoveChannel(c)
	}
}

// Tie records a weak back-reference to the channel's owner. Every event
// dispatch attempts to upgrade it first; a failed upgrade silently drops
// the event instead of running against a torn-down owner.
func (c *Channel) Tie(owner Owner) {
	c.tie = owner
	c.tied = true
}

// HandleEvent dispatches revents in the order the spec requires: hangup
// without input, then error bits, then read, then write. When is the
// loop's poll-return timestamp in unix nanoseconds.
func (c *Channel) HandleEvent(when int64) {
	if c.tied {
		if _, ok := c.tie.Upgrade(); !ok {
			return
		}
	}

	r := c.revents

	if r&unix.POLLHUP != 0 && r&unix.POLLIN == 0 {
		if c.closeCb != nil {
			c.closeCb()
		}
		return
	}

	if r&(unix.POLLERR|unix.POLLNVAL) != 0 {
		if c.errorCb != nil {
			c.errorCb()
		}
	}

	if r&(unix.POLLIN|unix.POLLPRI|unix.POLLHUP) != 0 {
		if c.readCb != nil {
			c.readCb(when)
		}
	}

	if r&unix.POLLOUT != 0 {
		if c.writeCb != nil {
			c.writeCb()
		}
	}
}
