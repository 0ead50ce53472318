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

// Package logger wraps logrus behind the small interface the reactor core
// calls at its handful of structured logging sites: the acceptor's listen
// and accept faults, connection read/write/socket faults, readiness wait
// failures and fatal setup errors.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger surface the reactor core depends on.
type Logger interface {
	// SetLevel sets the minimum level emitted from this point on.
	SetLevel(level Level)
	// GetLevel returns the current minimum level.
	GetLevel() Level

	// SetFields replaces the base fields attached to every future Entry.
	SetFields(f Fields)
	// GetFields returns the current base fields.
	GetFields() Fields

	// Entry returns a new Entry seeded with the logger's base fields.
	Entry() Entry

	// Debug logs msg at DebugLevel with the base fields.
	Debug(msg string)
	// Info logs msg at InfoLevel with the base fields.
	Info(msg string)
	// Warning logs msg at WarnLevel with the base fields.
	Warning(msg string)
	// Error logs msg at ErrorLevel with the base fields.
	Error(msg string)
	// Fatal logs msg at FatalLevel with the base fields, then terminates
	// the process.
	Fatal(msg string)
}

type logger struct {
	mu  sync.RWMutex
	log *logrus.Logger
	lvl Level
	fld Fields
}

// Discard returns a Logger that drops every entry. Constructors across the
// core fall back to it when handed a nil Logger, so call sites never need
// a nil check of their own.
func Discard() Logger {
	return New(NilLevel, io.Discard)
}

// New returns a Logger writing JSON-formatted entries to w at the given
// level. A nil w defaults to os.Stderr, matching the teacher's default.
func New(level Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level.logrus())

	return &logger{
		log: l,
		lvl: level,
		fld: Fields{},
	}
}

func (l *logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lvl = level
	l.log.SetLevel(level.logrus())
}

func (l *logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lvl
}

func (l *logger) SetFields(f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fld = f.Clone()
}

func (l *logger) GetFields() Fields {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.fld.Clone()
}

func (l *logger) Entry() Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return newEntry(l.log.WithFields(l.fld.logrus()))
}

func (l *logger) Debug(msg string) {
	l.Entry().Debug(msg)
}

func (l *logger) Info(msg string) {
	l.Entry().Info(msg)
}

func (l *logger) Warning(msg string) {
	l.Entry().Warning(msg)
}

func (l *logger) Error(msg string) {
	l.Entry().Error(msg)
}

func (l *logger) Fatal(msg string) {
	l.Entry().Fatal(msg)
}
