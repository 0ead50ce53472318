/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errors classifies the dispositions of the error table in spec
// section 7 of the reactor framework: fatal setup, accept limits, read/write
// faults, demux wait faults and thread-affinity violations each get their
// own CodeError so callers can branch on disposition instead of string
// matching.
package errors

import "strconv"

// CodeError is a small numeric classification of an error's disposition,
// similar in spirit to an HTTP status code.
type CodeError uint8

const (
	// UnknownError is the zero value, used when an error was not raised by
	// this package.
	UnknownError CodeError = iota

	// CodeFatalSetup: socket(), bind(), listen(), epoll_create1, eventfd
	// failed. Disposition: terminate the process after logging.
	CodeFatalSetup

	// CodeAcceptLimit: accept() returned EMFILE. Disposition: log and
	// continue, the connection is dropped.
	CodeAcceptLimit

	// CodeAcceptOther: accept() failed for any other reason. Disposition:
	// log and continue.
	CodeAcceptOther

	// CodeReadClosed: readFromFd returned n == 0. Disposition: treat as a
	// peer close, drive the connection to Disconnected.
	CodeReadClosed

	// CodeReadError: readFromFd returned n < 0. Disposition: log, invoke the
	// error handler, the connection survives unless the peer also closed.
	CodeReadError

	// CodeWriteWouldBlock: direct write in sendInLoop got EWOULDBLOCK.
	// Disposition: buffer the remainder and enable write interest.
	CodeWriteWouldBlock

	// CodeWriteFault: direct write got EPIPE or ECONNRESET. Disposition:
	// mark faultError, drop buffered data.
	CodeWriteFault

	// CodeWriteOther: write failed for any other reason. Disposition: log
	// and continue.
	CodeWriteOther

	// CodeDemuxInterrupted: the demux wait returned EINTR. Disposition:
	// silent retry on the next loop iteration.
	CodeDemuxInterrupted

	// CodeDemuxOther: the demux wait failed for any other reason.
	// Disposition: log and continue.
	CodeDemuxOther

	// CodeAffinityViolation: a mutating call landed on a thread that does
	// not own the loop/channel/connection being mutated. Disposition:
	// programmer error, fatal.
	CodeAffinityViolation
)

var codeNames = map[CodeError]string{
	UnknownError:           "unknown error",
	CodeFatalSetup:         "fatal setup failure",
	CodeAcceptLimit:        "accept: file descriptor limit reached",
	CodeAcceptOther:        "accept: failed",
	CodeReadClosed:         "read: peer closed the connection",
	CodeReadError:          "read: failed",
	CodeWriteWouldBlock:    "write: would block, buffering",
	CodeWriteFault:         "write: peer reset or pipe broken",
	CodeWriteOther:         "write: failed",
	CodeDemuxInterrupted:  "demux wait: interrupted",
	CodeDemuxOther:        "demux wait: failed",
	CodeAffinityViolation: "thread-affinity violation",
}

// String returns the numeric code as a string, matching the teacher's
// CodeError.String convention.
func (c CodeError) String() string {
	return strconv.Itoa(int(c))
}

// Message returns the human-readable disposition for this code.
func (c CodeError) Message() string {
	if m, ok := codeNames[c]; ok {
		return m
	}

	return codeNames[UnknownError]
}

// Error builds a new Error value for this code wrapping the given cause.
func (c CodeError) Error(cause error) Error {
	return newError(c, c.Message(), cause)
}
