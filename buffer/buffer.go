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

// Package buffer implements the growable byte queue a Connection uses for
// its input and output: a prependable|readable|writable layout with a
// scatter-read path that bounds an unknown-size incoming read to a single
// syscall.
package buffer

import "golang.org/x/sys/unix"

const (
	// CheapPrepend is the headroom reserved at the front of the buffer,
	// so a caller can prepend a short framing header without a copy.
	CheapPrepend = 8

	// InitialSize is the initial writable capacity beyond CheapPrepend.
	InitialSize = 1024

	// extraSize is the on-stack scratch region readFromFd spills excess
	// bytes into when a single read exceeds the current writable space.
	extraSize = 64 * 1024
)

// ByteBuffer is a growable read/write byte queue with prependable headroom.
// It is not safe for concurrent use; each Connection owns two (input,
// output) and both are only ever touched on the owning loop's thread.
type ByteBuffer struct {
	buf    []byte
	reader int
	writer int
}

// New returns a ByteBuffer with the default initial capacity.
func New() *ByteBuffer {
	return &ByteBuffer{
		buf:    make([]byte, CheapPrepend+InitialSize),
		reader: CheapPrepend,
		writer: CheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *ByteBuffer) ReadableBytes() int {
	return b.writer - b.reader
}

// WritableBytes returns the number of bytes that can be appended without
// growing the buffer.
func (b *ByteBuffer) WritableBytes() int {
	return len(b.buf) - b.writer
}

// PrependableBytes returns the number of bytes of reclaimable headroom
// before the readable region.
func (b *ByteBuffer) PrependableBytes() int {
	return b.reader
}

// Peek returns the readable region without consuming it.
func (b *ByteBuffer) Peek() []byte {
	return b.buf[b.reader:b.writer]
}

// Retrieve advances the reader index by n. If that consumes every
// readable byte, both indices reset to CheapPrepend so the freed space is
// immediately reusable.
func (b *ByteBuffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.reader = CheapPrepend
		b.writer = CheapPrepend
		return
	}

	b.reader += n
}

// RetrieveAllAsString drains the entire readable region and returns it as
// a string, resetting the buffer to its empty state.
func (b *ByteBuffer) RetrieveAllAsString() string {
	s := string(b.Peek())
	b.Retrieve(b.ReadableBytes())

	return s
}

// Append copies data onto the end of the writable region, growing the
// buffer first if necessary.
func (b *ByteBuffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.writer += copy(b.buf[b.writer:], data)
}

// EnsureWritable guarantees WritableBytes() >= n, sliding the readable
// region down to reclaim prepend space before growing the underlying
// slice.
func (b *ByteBuffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}

	if b.WritableBytes()+(b.PrependableBytes()-CheapPrepend) >= n {
		readable := b.ReadableBytes()
		copy(b.buf[CheapPrepend:], b.buf[b.reader:b.writer])
		b.reader = CheapPrepend
		b.writer = CheapPrepend + readable

		return
	}

	grown := make([]byte, b.writer+n)
	copy(grown, b.buf[:b.writer])
	b.buf = grown
}

// ReadFromFd performs one scatter read from fd: the writable tail plus a
// 64 KiB on-stack extra region as the second iovec, so a single syscall
// can absorb a burst larger than the buffer's current writable space.
// Returns the number of bytes read, or a negative count and the errno on
// failure; it never fails the buffer itself.
func (b *ByteBuffer) ReadFromFd(fd int) (int, error) {
	var extra [extraSize]byte

	writable := b.WritableBytes()

	n, err := unix.Readv(fd, [][]byte{b.buf[b.writer:], extra[:]})
	if n <= 0 {
		return n, err
	}

	if n <= writable {
		b.writer += n
		return n, nil
	}

	b.writer += writable
	spill := n - writable
	b.Append(extra[:spill])

	return n, nil
}

// WriteToFd writes the readable region in a single call. It does not
// advance the reader; the caller retrieves the accepted prefix once it
// knows how many bytes were actually written.
func (b *ByteBuffer) WriteToFd(fd int) (int, error) {
	return unix.Write(fd, b.Peek())
}
