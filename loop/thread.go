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

package loop

import (
	"runtime"
	"sync"

	"github.com/nabbar/reactor/logger"
)

// Thread spawns a single worker OS thread hosting its own Loop.
type Thread struct {
	log logger.Logger

	mu   sync.Mutex
	cond *sync.Cond
	l    *Loop

	done chan struct{}
}

// NewThread constructs a Thread. Start must be called to actually spawn
// the worker goroutine.
func NewThread(log logger.Logger) *Thread {
	if log == nil {
		log = logger.Discard()
	}

	t := &Thread{log: log, done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)

	return t
}

// Start spawns the worker goroutine, which locks itself to its OS
// thread, constructs a Loop there, runs initCb (if non-nil) with that
// Loop, then calls Run. Start blocks until the Loop has been published,
// so Loop() is safe to call as soon as Start returns.
func (t *Thread) Start(initCb func(*Loop)) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		l, err := New(t.log)
		if err != nil {
			t.log.Entry().WithError(err).Fatal("failed to start loop thread")
			close(t.done)
			return
		}

		t.mu.Lock()
		t.l = l
		t.cond.Broadcast()
		t.mu.Unlock()

		if initCb != nil {
			initCb(l)
		}

		l.Run()
		_ = l.Close()
		close(t.done)
	}()

	t.mu.Lock()
	for t.l == nil {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

// Loop returns the worker's Loop. Only valid after Start has returned.
func (t *Thread) Loop() *Loop {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.l
}

// Stop requests the worker loop quit and waits for its goroutine to
// exit.
func (t *Thread) Stop() {
	if l := t.Loop(); l != nil {
		l.Quit()
	}

	<-t.done
}

// Pool owns N Thread workers and round-robins connection placement
// across their published loops. A zero-size Pool means the caller's own
// (base) loop is the only I/O loop.
type Pool struct {
	log     logger.Logger
	threads []*Thread
	next    int
}

// NewPool constructs an empty Pool; call SetThreadNum then Start.
func NewPool(log logger.Logger) *Pool {
	return &Pool{log: log}
}

// SetThreadNum sets the worker count. Must be called before Start.
func (p *Pool) SetThreadNum(n int) {
	p.threads = make([]*Thread, n)
	for i := range p.threads {
		p.threads[i] = NewThread(p.log)
	}
}

// Start spawns every worker thread, invoking initCb on each one's own
// thread once its Loop is constructed and before it begins polling.
func (p *Pool) Start(initCb func(*Loop)) {
	for _, t := range p.threads {
		t.Start(initCb)
	}
}

// Stop tears down every worker thread.
func (p *Pool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}

// NextLoop selects the next worker loop by round robin. baseLoop is
// returned when the pool has no workers (ThreadNum == 0), so the
// acceptor's own loop also serves connection I/O. Must only be called on
// the base loop's thread.
func (p *Pool) NextLoop(baseLoop *Loop) *Loop {
	if len(p.threads) == 0 {
		return baseLoop
	}

	l := p.threads[p.next].Loop()
	p.next = (p.next + 1) % len(p.threads)

	return l
}
