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

package logger

import "github.com/sirupsen/logrus"

// Entry is a single in-flight log record: a message plus the fields and
// level it will be emitted with. It is returned by Logger.Entry so a
// caller can attach fields incrementally before emitting.
type Entry interface {
	// WithField returns a copy of this Entry with k/v added.
	WithField(k string, v interface{}) Entry
	// WithFields returns a copy of this Entry with f merged in.
	WithFields(f Fields) Entry
	// WithError returns a copy of this Entry with the standard "error"
	// field set to err.Error().
	WithError(err error) Entry

	// Log emits the entry at the given level.
	Log(level Level, msg string)
	// Debug emits the entry at DebugLevel.
	Debug(msg string)
	// Info emits the entry at InfoLevel.
	Info(msg string)
	// Warning emits the entry at WarnLevel.
	Warning(msg string)
	// Error emits the entry at ErrorLevel.
	Error(msg string)
	// Fatal emits the entry at FatalLevel then terminates the process.
	Fatal(msg string)
}

type entry struct {
	ent *logrus.Entry
}

func newEntry(e *logrus.Entry) Entry {
	return &entry{ent: e}
}

func (e *entry) WithField(k string, v interface{}) Entry {
	return newEntry(e.ent.WithField(k, v))
}

func (e *entry) WithFields(f Fields) Entry {
	return newEntry(e.ent.WithFields(f.logrus()))
}

func (e *entry) WithError(err error) Entry {
	return newEntry(e.ent.WithError(err))
}

func (e *entry) Log(level Level, msg string) {
	e.ent.Log(level.logrus(), msg)
}

func (e *entry) Debug(msg string) {
	e.ent.Debug(msg)
}

func (e *entry) Info(msg string) {
	e.ent.Info(msg)
}

func (e *entry) Warning(msg string) {
	e.ent.Warning(msg)
}

func (e *entry) Error(msg string) {
	e.ent.Error(msg)
}

func (e *entry) Fatal(msg string) {
	e.ent.Fatal(msg)
}
