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

package logger_test

import (
	"bytes"
	"encoding/json"

	"github.com/nabbar/reactor/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer
	var log logger.Logger

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = logger.New(logger.DebugLevel, buf)
	})

	It("filters entries below the configured level", func() {
		log.SetLevel(logger.WarnLevel)
		Expect(log.GetLevel()).To(Equal(logger.WarnLevel))

		log.Info("should not appear")
		log.Warning("should appear")

		Expect(buf.String()).NotTo(ContainSubstring("should not appear"))
		Expect(buf.String()).To(ContainSubstring("should appear"))
	})

	It("propagates base fields onto every entry", func() {
		log.SetFields(logger.Fields{"conn": "1-127.0.0.1:9000#1"})
		log.Info("accepted")

		var decoded map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
		Expect(decoded["conn"]).To(Equal("1-127.0.0.1:9000#1"))
	})

	It("merges per-entry fields without mutating the logger's base fields", func() {
		log.SetFields(logger.Fields{"server": "echo"})
		log.Entry().WithField("conn", "1").Info("hello")

		Expect(log.GetFields()).To(Equal(logger.Fields{"server": "echo"}))

		var decoded map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
		Expect(decoded["server"]).To(Equal("echo"))
		Expect(decoded["conn"]).To(Equal("1"))
	})

	It("attaches an error under the standard field name", func() {
		log.Entry().WithError(errBoom).Error("write failed")

		var decoded map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
		Expect(decoded["error"]).To(Equal(errBoom.Error()))
	})

	It("discards every entry regardless of level", func() {
		d := logger.Discard()

		Expect(d.GetLevel()).To(Equal(logger.NilLevel))
		d.Error("dropped, nothing to assert against")
	})
})

var errBoom = &testError{"boom"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
