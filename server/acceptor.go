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

package server

import (
	"net"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/socket"
)

// acceptor owns the listening socket and its channel. On readable, it
// accepts once and forwards the new fd and peer address upward; the
// remainder of a connection burst is served on subsequent level-triggered
// readiness events.
type acceptor struct {
	sock *socket.Handle
	ch   *channel.Channel
	log  logger.Logger

	onNewConnection func(sock *socket.Handle, peer net.Addr)
}

func newAcceptor(addr string, reusePort bool, lp channel.Updater, log logger.Logger) (*acceptor, error) {
	if log == nil {
		log = logger.Discard()
	}

	sock, err := socket.NewListener()
	if err != nil {
		return nil, err
	}

	if err = sock.SetReuseAddr(true); err != nil {
		_ = sock.Close()
		return nil, errors.CodeFatalSetup.Error(err)
	}

	if reusePort {
		if err = sock.SetReusePort(true); err != nil {
			_ = sock.Close()
			return nil, errors.CodeFatalSetup.Error(err)
		}
	}

	if err = sock.Bind(addr); err != nil {
		_ = sock.Close()
		return nil, err
	}

	a := &acceptor{sock: sock, log: log}
	a.ch = channel.New(sock.Fd(), lp)
	a.ch.OnRead(a.handleRead)

	return a, nil
}

func (a *acceptor) listen() error {
	if err := a.sock.Listen(0); err != nil {
		return err
	}

	a.log.Entry().Info("listening")
	a.ch.EnableReading()
	return nil
}

func (a *acceptor) handleRead(int64) {
	connFd, peer, err := a.sock.Accept()
	if err != nil {
		if errors.HasCode(err, errors.CodeAcceptLimit) {
			a.log.Entry().WithError(err).Warning("accept: too many open files")
		} else {
			a.log.Entry().WithError(err).Error("accept failed")
		}

		return
	}

	if a.onNewConnection == nil {
		_ = connFd.Close()
		return
	}

	a.onNewConnection(connFd, peer)
}
