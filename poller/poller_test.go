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

package poller_test

import (
	"os"
	"time"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/poller"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type noopUpdater struct{ d *poller.Demux }

func (u *noopUpdater) UpdateChannel(ch *channel.Channel) { u.d.UpdateChannel(ch) }
func (u *noopUpdater) RemoveChannel(ch *channel.Channel) { u.d.RemoveChannel(ch) }

var _ = Describe("Demux", func() {
	var d *poller.Demux

	BeforeEach(func() {
		var err error
		d, err = poller.New()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = d.Close()
	})

	It("reports a registered channel as ready once its fd becomes readable", func() {
		r, w, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()
		defer w.Close()

		u := &noopUpdater{d: d}
		ch := channel.New(int(r.Fd()), u)
		ch.EnableReading()

		Expect(d.HasChannel(int(r.Fd()))).To(BeTrue())

		_, err = w.Write([]byte("x"))
		Expect(err).NotTo(HaveOccurred())

		active, _, err := d.Poll(time.Second, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(ConsistOf(ch))
	})

	It("stops reporting a channel after RemoveChannel", func() {
		r, w, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()
		defer w.Close()

		u := &noopUpdater{d: d}
		ch := channel.New(int(r.Fd()), u)
		ch.EnableReading()
		ch.DisableAll()
		ch.Remove()

		Expect(d.HasChannel(int(r.Fd()))).To(BeFalse())

		_, err = w.Write([]byte("x"))
		Expect(err).NotTo(HaveOccurred())

		active, _, err := d.Poll(10*time.Millisecond, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeEmpty())
	})

	It("reports every ready channel when one poll fills all event slots", func() {
		u := &noopUpdater{d: d}

		var readers []*os.File
		var active []*channel.Channel

		for i := 0; i < poller.InitialEventSlots(); i++ {
			r, w, err := os.Pipe()
			Expect(err).NotTo(HaveOccurred())
			readers = append(readers, r, w)

			ch := channel.New(int(r.Fd()), u)
			ch.EnableReading()

			_, err = w.Write([]byte("x"))
			Expect(err).NotTo(HaveOccurred())
		}
		defer func() {
			for _, f := range readers {
				_ = f.Close()
			}
		}()

		active, _, err := d.Poll(time.Second, active)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(HaveLen(poller.InitialEventSlots()))
	})
})
