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

// Package config bundles the reactor server's construction-time options
// behind the functional-options idiom, so adding a new knob never breaks
// an existing call to server.New.
package config

const (
	// DefaultHighWaterMark is applied when WithHighWaterMark is not used:
	// 64 MiB of unsent output before a Connection's high-water callback
	// fires (spec section 4.8).
	DefaultHighWaterMark uint64 = 64 << 20

	// DefaultThreadNum is applied when WithThreadNum is not used: no
	// worker pool, connection I/O runs on the base loop.
	DefaultThreadNum = 0
)

// Options bundles the parameters a Server is constructed with.
type Options struct {
	// ListenAddr is the "host:port" or "ip:port" the acceptor binds to.
	ListenAddr string

	// ReusePort sets SO_REUSEPORT on the listening socket, letting
	// multiple processes/threads share the same address.
	ReusePort bool

	// ThreadNum is the number of loop threads in the pool. Zero means
	// connection I/O runs on the base loop alongside the acceptor.
	ThreadNum int

	// HighWaterMark is the per-connection output-buffer byte threshold
	// above which the high-water callback fires.
	HighWaterMark uint64

	// Name identifies this server in logs and connection names.
	Name string
}

// Option mutates an Options value being built up by New.
type Option func(*Options)

// New builds an Options value from the teacher's default base, applying
// opts in order.
func New(opts ...Option) Options {
	o := Options{
		HighWaterMark: DefaultHighWaterMark,
		ThreadNum:     DefaultThreadNum,
		Name:          "reactor",
	}

	for _, fn := range opts {
		fn(&o)
	}

	return o
}

// WithListenAddr sets the address the acceptor binds to.
func WithListenAddr(addr string) Option {
	return func(o *Options) {
		o.ListenAddr = addr
	}
}

// WithReusePort enables SO_REUSEPORT on the listening socket.
func WithReusePort() Option {
	return func(o *Options) {
		o.ReusePort = true
	}
}

// WithThreadNum sets the loop thread pool size. n <= 0 means all
// connection I/O runs on the base loop.
func WithThreadNum(n int) Option {
	return func(o *Options) {
		o.ThreadNum = n
	}
}

// WithHighWaterMark sets the per-connection output-buffer threshold, in
// bytes, above which the high-water callback fires.
func WithHighWaterMark(n uint64) Option {
	return func(o *Options) {
		o.HighWaterMark = n
	}
}

// WithName sets the server's name, used in logs and connection naming.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}
