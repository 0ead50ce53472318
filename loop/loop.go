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

// Package loop implements the per-thread reactor: it drives a
// ReadinessDemux, dispatches ready channels, and runs cross-thread tasks
// delegated to it via an eventfd-backed wakeup.
package loop

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/poller"
)

// pollTimeout bounds demux.Poll so quit and pending functors are
// eventually observed even without an external wakeup.
const pollTimeout = 10 * time.Second

// demux is the narrow readiness-multiplexer surface EventLoop drives;
// poller.Demux satisfies it.
type demux interface {
	UpdateChannel(ch *channel.Channel)
	RemoveChannel(ch *channel.Channel)
	HasChannel(fd int) bool
	Poll(timeout time.Duration, active []*channel.Channel) ([]*channel.Channel, int64, error)
	Close() error
}

// Loop is a per-thread reactor. Every mutating method other than
// RunInLoop/QueueInLoop/Wakeup/Quit must be called on the OS thread that
// constructed it. AssertInLoopThread reports a violation to a caller that
// asks; the mutating methods themselves do not check the calling thread.
type Loop struct {
	tid int64

	demux demux
	log   logger.Logger

	looping                int32
	quit                   int32
	callingPendingFunctors int32

	mu      sync.Mutex
	pending []func()

	wakeupFd int
	wakeupCh *channel.Channel

	activeChannels []*channel.Channel
	pollReturnTime int64
}

// New constructs a Loop bound to the calling OS thread. The caller must
// keep this goroutine locked to its OS thread for the loop's lifetime
// (runtime.LockOSThread), matching the one-loop-per-thread discipline.
func New(log logger.Logger) (*Loop, error) {
	if log == nil {
		log = logger.Discard()
	}

	d, err := poller.New()
	if err != nil {
		return nil, err
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = d.Close()
		return nil, errors.CodeFatalSetup.Error(err)
	}

	l := &Loop{
		tid:      currentThreadID(),
		demux:    d,
		log:      log,
		wakeupFd: efd,
	}

	l.wakeupCh = channel.New(efd, l)
	l.wakeupCh.OnRead(func(int64) { l.drainWakeup() })
	l.wakeupCh.EnableReading()

	return l, nil
}

// ThreadID returns the OS thread id this loop was constructed on.
func (l *Loop) ThreadID() int64 {
	return l.tid
}

// IsInLoopThread reports whether the caller is running on this loop's
// owning thread.
func (l *Loop) IsInLoopThread() bool {
	return currentThreadID() == l.tid
}

// AssertInLoopThread returns a thread-affinity error if the caller is not
// on the owning thread. No entry point in Channel, Connection or the demux
// calls it; UpdateChannel and RemoveChannel run on whatever thread calls
// them.
func (l *Loop) AssertInLoopThread() error {
	if l.IsInLoopThread() {
		return nil
	}

	return errors.CodeAffinityViolation.Error(nil)
}

// UpdateChannel forwards to the demux; callers must be on this loop's
// thread.
func (l *Loop) UpdateChannel(ch *channel.Channel) {
	l.demux.UpdateChannel(ch)
}

// RemoveChannel forwards to the demux; callers must be on this loop's
// thread.
func (l *Loop) RemoveChannel(ch *channel.Channel) {
	l.demux.RemoveChannel(ch)
}

// HasChannel reports whether fd is currently registered with the demux.
func (l *Loop) HasChannel(fd int) bool {
	return l.demux.HasChannel(fd)
}

// Run executes the main reactor iteration until Quit is observed. It
// must be called on the loop's owning thread and does not return until
// shutdown.
func (l *Loop) Run() {
	atomic.StoreInt32(&l.quit, 0)
	atomic.StoreInt32(&l.looping, 1)

	for atomic.LoadInt32(&l.quit) == 0 {
		l.activeChannels = l.activeChannels[:0]

		active, when, err := l.demux.Poll(pollTimeout, l.activeChannels)
		l.activeChannels = active
		l.pollReturnTime = when

		if err != nil && !errors.HasCode(err, errors.CodeDemuxInterrupted) {
			l.log.Entry().WithError(err).Warning("readiness wait failed")
		}

		for _, ch := range l.activeChannels {
			ch.HandleEvent(l.pollReturnTime)
		}

		l.runPendingFunctors()
	}

	atomic.StoreInt32(&l.looping, 0)
}

// RunInLoop executes fn on this loop. If the caller is already on the
// loop's thread, fn runs synchronously; otherwise it is queued and the
// loop is woken.
func (l *Loop) RunInLoop(fn func()) {
	if l.IsInLoopThread() {
		fn()
		return
	}

	l.QueueInLoop(fn)
}

// QueueInLoop appends fn to the pending-functor queue. It wakes the loop
// whenever the caller is off-thread, or when the loop is itself mid-drain
// (a functor enqueuing another functor must not re-enter the same drain
// pass).
func (l *Loop) QueueInLoop(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	if !l.IsInLoopThread() || atomic.LoadInt32(&l.callingPendingFunctors) == 1 {
		l.Wakeup()
	}
}

// Wakeup writes to the eventfd, unblocking a concurrent demux.Poll.
func (l *Loop) Wakeup() {
	one := uint64(1)
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, _ = unix.Write(l.wakeupFd, buf)
}

func (l *Loop) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(l.wakeupFd, buf[:])
}

func (l *Loop) runPendingFunctors() {
	atomic.StoreInt32(&l.callingPendingFunctors, 1)

	l.mu.Lock()
	funcs := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range funcs {
		fn()
	}

	atomic.StoreInt32(&l.callingPendingFunctors, 0)
}

// Quit requests the loop stop at its next iteration boundary. Safe to
// call from any thread.
func (l *Loop) Quit() {
	atomic.StoreInt32(&l.quit, 1)

	if !l.IsInLoopThread() {
		l.Wakeup()
	}
}

// IsLooping reports whether Run is currently executing its iteration
// loop.
func (l *Loop) IsLooping() bool {
	return atomic.LoadInt32(&l.looping) == 1
}

// Close releases the wakeup fd and the demux. Call only after Run has
// returned.
func (l *Loop) Close() error {
	_ = unix.Close(l.wakeupFd)
	return l.demux.Close()
}
