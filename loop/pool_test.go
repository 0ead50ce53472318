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

	"github.com/nabbar/reactor/loop"
	"github.com/nabbar/reactor/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	var log logger.Logger

	BeforeEach(func() {
		log = logger.New(logger.ErrorLevel, io.Discard)
	})

	It("returns the base loop when ThreadNum is zero", func() {
		p := loop.NewPool(log)
		base, err := loop.New(log)
		Expect(err).NotTo(HaveOccurred())
		defer base.Close()

		Expect(p.NextLoop(base)).To(BeIdenticalTo(base))
		Expect(p.NextLoop(base)).To(BeIdenticalTo(base))
	})

	It("round-robins across N worker loops and wraps around", func() {
		p := loop.NewPool(log)
		p.SetThreadNum(3)
		p.Start(nil)
		defer p.Stop()

		base, err := loop.New(log)
		Expect(err).NotTo(HaveOccurred())
		defer base.Close()

		var seen []*loop.Loop
		for i := 0; i < 6; i++ {
			seen = append(seen, p.NextLoop(base))
		}

		Expect(seen[0]).To(BeIdenticalTo(seen[3]))
		Expect(seen[1]).To(BeIdenticalTo(seen[4]))
		Expect(seen[2]).To(BeIdenticalTo(seen[5]))
		Expect(seen[0]).NotTo(BeIdenticalTo(seen[1]))
		Expect(seen[1]).NotTo(BeIdenticalTo(seen[2]))
	})
})
