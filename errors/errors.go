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

package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Error extends the standard error with a disposition code and the call
// site that raised it.
type Error interface {
	error

	// Code returns the disposition code carried by this error.
	Code() CodeError
	// IsCode reports whether this error's code equals the given code.
	IsCode(code CodeError) bool
	// Unwrap returns the wrapped cause, if any, for compatibility with
	// errors.Is / errors.As.
	Unwrap() error
	// Trace returns "file:line" of the call that raised this error, or ""
	// if no frame was captured.
	Trace() string
}

type ers struct {
	code  CodeError
	msg   string
	cause error
	fr    runtime.Frame
}

func newError(code CodeError, msg string, cause error) Error {
	return &ers{
		code:  code,
		msg:   msg,
		cause: cause,
		fr:    frame(),
	}
}

// New builds an Error with the given code, message and optional cause.
func New(code CodeError, msg string, cause error) Error {
	return newError(code, msg, cause)
}

// Newf builds an Error with the given code and a formatted message.
func Newf(code CodeError, cause error, format string, args ...interface{}) Error {
	return newError(code, fmt.Sprintf(format, args...), cause)
}

func (e *ers) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
	}

	return e.msg
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) Unwrap() error {
	return e.cause
}

func (e *ers) Trace() string {
	return frameString(e.fr)
}

// Is reports whether the given error is (or wraps) an Error of this
// package, for compatibility with the standard errors.Is/As functions.
func Is(err error) bool {
	var e Error
	return errors.As(err, &e)
}

// Get returns err as an Error if it is one (directly or wrapped), or nil.
func Get(err error) Error {
	var e Error
	if errors.As(err, &e) {
		return e
	}

	return nil
}

// HasCode reports whether err is an Error carrying the given code.
func HasCode(err error, code CodeError) bool {
	if e := Get(err); e != nil {
		return e.IsCode(code)
	}

	return false
}
