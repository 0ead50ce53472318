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

package conn_test

import (
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/buffer"
	"github.com/nabbar/reactor/conn"
	"github.com/nabbar/reactor/config"
	"github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/loop"
	"github.com/nabbar/reactor/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func socketpair() (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	Expect(err).NotTo(HaveOccurred())

	return fds[0], fds[1]
}

func peerWrite(fd int, data []byte) {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			time.Sleep(time.Millisecond)
			continue
		}
		Expect(err).NotTo(HaveOccurred())
		data = data[n:]
	}
}

func peerReadUntil(fd int, n int, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, n)
	buf := make([]byte, 4096)

	for len(out) < n {
		got, err := unix.Read(fd, buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if time.Now().After(deadline) {
				return out
			}
			time.Sleep(time.Millisecond)
			continue
		}
		Expect(err).NotTo(HaveOccurred())
		out = append(out, buf[:got]...)
	}

	return out
}

var _ = Describe("Connection", func() {
	var l *loop.Loop
	var log logger.Logger

	BeforeEach(func() {
		log = logger.New(logger.ErrorLevel, io.Discard)
		var err error
		l, err = loop.New(log)
		Expect(err).NotTo(HaveOccurred())
		go l.Run()
	})

	AfterEach(func() {
		l.Quit()
		_ = l.Close()
	})

	It("echoes a message back to the peer after connectEstablished", func() {
		connFd, peerFd := socketpair()
		defer unix.Close(peerFd)

		sock := socket.FromFd(connFd)
		opts := config.New()
		c := conn.New("echo-test#1", sock, nil, nil, l, log, opts)

		c.SetMessageCallback(func(cn *conn.Connection, in *buffer.ByteBuffer, when int64) {
			cn.Send([]byte(in.RetrieveAllAsString()))
		})

		l.RunInLoop(c.ConnectEstablished)
		Eventually(c.State, time.Second).Should(Equal(conn.Connected))

		peerWrite(peerFd, []byte("hello\n"))
		got := peerReadUntil(peerFd, 6, time.Second)

		Expect(string(got)).To(Equal("hello\n"))
	})

	It("transitions to Disconnected and fires the close callback once the peer closes", func() {
		connFd, peerFd := socketpair()

		sock := socket.FromFd(connFd)
		opts := config.New()
		c := conn.New("echo-test#2", sock, nil, nil, l, log, opts)

		var closes int32
		c.SetCloseCallback(func(cn *conn.Connection) { atomic.AddInt32(&closes, 1) })

		l.RunInLoop(c.ConnectEstablished)
		Eventually(c.State, time.Second).Should(Equal(conn.Connected))

		Expect(unix.Close(peerFd)).To(Succeed())

		Eventually(c.State, time.Second).Should(Equal(conn.Disconnected))
		Eventually(func() int32 { return atomic.LoadInt32(&closes) }, time.Second).Should(Equal(int32(1)))

		l.RunInLoop(c.ConnectDestroyed)
	})

	It("does not call shutdownWrite until the output buffer has drained", func() {
		connFd, peerFd := socketpair()
		defer unix.Close(peerFd)

		sock := socket.FromFd(connFd)
		opts := config.New()
		c := conn.New("echo-test#3", sock, nil, nil, l, log, opts)

		l.RunInLoop(c.ConnectEstablished)
		Eventually(c.State, time.Second).Should(Equal(conn.Connected))

		c.Send([]byte("bye\n"))
		c.Shutdown()

		got := peerReadUntil(peerFd, 4, time.Second)
		Expect(string(got)).To(Equal("bye\n"))

		rest := make([]byte, 1)
		Eventually(func() int {
			n, err := unix.Read(peerFd, rest)
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return -1
			}
			return n
		}, time.Second, 10*time.Millisecond).Should(Equal(0))
	})

	It("fires the high-water callback exactly once on the crossing edge", func() {
		connFd, peerFd := socketpair()
		defer unix.Close(peerFd)

		Expect(unix.SetsockoptInt(connFd, unix.SOL_SOCKET, unix.SO_SNDBUF, 1)).To(Succeed())

		// Fill the shrunken send buffer so Send's direct write cannot take
		// the payload and it has to queue in the output buffer.
		filler := make([]byte, 512)
		for {
			if _, err := unix.Write(connFd, filler); err != nil {
				Expect(err).To(Equal(unix.EAGAIN))
				break
			}
		}

		sock := socket.FromFd(connFd)
		opts := config.New(config.WithHighWaterMark(1024))
		c := conn.New("echo-test#4", sock, nil, nil, l, log, opts)

		var fired int32
		var lastSize uint64
		c.SetHighWaterMarkCallback(func(cn *conn.Connection, size uint64) {
			atomic.AddInt32(&fired, 1)
			lastSize = size
		})

		l.RunInLoop(c.ConnectEstablished)
		Eventually(c.State, time.Second).Should(Equal(conn.Connected))

		payload := make([]byte, 1025)
		for i := range payload {
			payload[i] = 'x'
		}
		c.Send(payload)

		Eventually(func() int32 { return atomic.LoadInt32(&fired) }, time.Second).Should(Equal(int32(1)))
		Expect(lastSize).To(BeNumerically(">=", 1024))
	})
})
