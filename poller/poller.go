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

// Package poller wraps epoll behind the narrow ReadinessDemux contract an
// EventLoop drives: register/modify/remove fd interest, block with a
// timeout, and hand back the channels that became ready.
package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/errors"
)

const initialEventSlots = 16

// InitialEventSlots returns the event-slot capacity a fresh Demux starts
// with, exposed so callers (and tests) can reason about the growth
// threshold without hardcoding it.
func InitialEventSlots() int {
	return initialEventSlots
}

// Demux is a ReadinessDemux over an epoll instance. It is only ever
// touched from its owning loop's thread.
type Demux struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*channel.Channel
}

// New creates an epoll instance.
func New() (*Demux, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.CodeFatalSetup.Error(err)
	}

	return &Demux{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initialEventSlots),
		channels: make(map[int]*channel.Channel),
	}, nil
}

// Close releases the epoll fd.
func (d *Demux) Close() error {
	return unix.Close(d.epfd)
}

// HasChannel reports whether fd is currently tracked by this demux.
func (d *Demux) HasChannel(fd int) bool {
	_, ok := d.channels[fd]
	return ok
}

// UpdateChannel registers ch (if New/Deleted) or re-syncs its interest
// with the kernel (if Added), per the index-state machine in spec
// section 4.4: avoid redundant ADD/DEL churn when interest toggles
// between zero and non-zero repeatedly.
func (d *Demux) UpdateChannel(ch *channel.Channel) {
	switch ch.Index() {
	case channel.New, channel.Deleted:
		d.channels[ch.Fd()] = ch
		d.ctl(unix.EPOLL_CTL_ADD, ch)
		ch.SetIndex(channel.Added)
	case channel.Added:
		if ch.IsNoneEvent() {
			d.ctl(unix.EPOLL_CTL_DEL, ch)
			ch.SetIndex(channel.Deleted)
		} else {
			d.ctl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

// RemoveChannel deregisters ch. The caller must have already cleared all
// interest on it.
func (d *Demux) RemoveChannel(ch *channel.Channel) {
	fd := ch.Fd()
	delete(d.channels, fd)

	if ch.Index() == channel.Added {
		d.ctl(unix.EPOLL_CTL_DEL, ch)
	}

	ch.SetIndex(channel.New)
}

func (d *Demux) ctl(op int, ch *channel.Channel) {
	ev := unix.EpollEvent{
		Events: uint32(ch.Events()),
		Fd:     int32(ch.Fd()),
	}

	// EPOLL_CTL_DEL ignores the event argument on some kernels but the
	// syscall still requires a non-nil pointer.
	_ = unix.EpollCtl(d.epfd, op, ch.Fd(), &ev)
}

// Poll blocks for up to timeout waiting for readiness, appending every
// channel that became ready (with its revents populated) to active.
// Returns the wall-clock time the call returned, in unix nanoseconds.
// EINTR is retried transparently by the caller's next loop iteration,
// not here; Poll surfaces it as errors.CodeDemuxInterrupted so EventLoop
// can distinguish a silent retry from a logged failure.
func (d *Demux) Poll(timeout time.Duration, active []*channel.Channel) ([]*channel.Channel, int64, error) {
	n, err := unix.EpollWait(d.epfd, d.events, int(timeout/time.Millisecond))
	now := time.Now().UnixNano()

	if err != nil {
		if err == unix.EINTR {
			return active, now, errors.CodeDemuxInterrupted.Error(err)
		}

		return active, now, errors.CodeDemuxOther.Error(err)
	}

	for i := 0; i < n; i++ {
		fd := int(d.events[i].Fd)
		ch, ok := d.channels[fd]
		if !ok {
			continue
		}

		ch.SetRevents(channel.Interest(d.events[i].Events))
		active = append(active, ch)
	}

	if n == len(d.events) {
		d.events = make([]unix.EpollEvent, len(d.events)*2)
	}

	return active, now, nil
}
