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

package socket_test

import (
	"net"
	"time"

	"github.com/nabbar/reactor/socket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handle", func() {
	var listener *socket.Handle

	AfterEach(func() {
		if listener != nil {
			_ = listener.Close()
			listener = nil
		}
	})

	It("binds, listens and accepts a loopback connection", func() {
		var err error
		listener, err = socket.NewListener()
		Expect(err).NotTo(HaveOccurred())

		Expect(listener.SetReuseAddr(true)).To(Succeed())
		Expect(listener.Bind("127.0.0.1:0")).To(Succeed())
		Expect(listener.Listen(0)).To(Succeed())

		addr, err := listener.LocalAddr()
		Expect(err).NotTo(HaveOccurred())

		dialed := make(chan error, 1)
		go func() {
			c, derr := net.DialTimeout("tcp", addr.String(), time.Second)
			if derr == nil {
				_ = c.Close()
			}
			dialed <- derr
		}()

		conn, peer, err := acceptWithRetry(listener, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(peer).NotTo(BeNil())
		Expect(conn.Fd()).To(BeNumerically(">", 0))

		Expect(<-dialed).NotTo(HaveOccurred())
		Expect(conn.Close()).To(Succeed())
	})
})

// acceptWithRetry polls Accept on a non-blocking listener until a
// connection arrives or deadline elapses, since the listener is
// SOCK_NONBLOCK and a bare Accept would race the dialing goroutine.
func acceptWithRetry(h *socket.Handle, timeout time.Duration) (*socket.Handle, net.Addr, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, peer, err := h.Accept()
		if err == nil {
			return conn, peer, nil
		}
		if time.Now().After(deadline) {
			return nil, nil, err
		}
		time.Sleep(time.Millisecond)
	}
}
