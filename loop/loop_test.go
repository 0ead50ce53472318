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

package loop_test

import (
	"io"
	"sync"
	"time"

	"github.com/nabbar/reactor/loop"
	"github.com/nabbar/reactor/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loop", func() {
	var l *loop.Loop
	var log logger.Logger

	BeforeEach(func() {
		log = logger.New(logger.ErrorLevel, io.Discard)
		var err error
		l, err = loop.New(log)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		l.Quit()
		_ = l.Close()
	})

	It("runs queued functors exactly once, from any thread", func() {
		done := make(chan struct{})
		go l.Run()

		var n int
		var mu sync.Mutex

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.QueueInLoop(func() {
					mu.Lock()
					n++
					mu.Unlock()
				})
			}()
		}
		wg.Wait()

		l.QueueInLoop(func() { close(done) })

		Eventually(done, time.Second).Should(BeClosed())

		mu.Lock()
		defer mu.Unlock()
		Expect(n).To(Equal(10))
	})

	It("executes RunInLoop synchronously when called from the loop's own thread", func() {
		t := loop.NewThread(log)
		t.Start(nil)
		defer t.Stop()
		wl := t.Loop()

		result := make(chan bool, 1)
		wl.QueueInLoop(func() {
			ran := false
			wl.RunInLoop(func() { ran = true })
			result <- ran
		})

		Eventually(result, time.Second).Should(Receive(BeTrue()))
	})

	It("stops the Run loop once Quit is called", func() {
		exited := make(chan struct{})
		go func() {
			l.Run()
			close(exited)
		}()

		Consistently(exited, 50*time.Millisecond).ShouldNot(BeClosed())

		l.Quit()
		Eventually(exited, time.Second).Should(BeClosed())
	})
})
