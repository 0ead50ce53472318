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

package socket

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// sockaddr resolves "ip:port" (or ":port" for INADDR_ANY) into a
// unix.SockaddrInet4, the only family this IPv4-only core supports.
func sockaddr(addr string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	sa := &unix.SockaddrInet4{Port: port}

	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, &net.AddrError{Err: "invalid IPv4 address", Addr: host}
		}

		ip4 := ip.To4()
		if ip4 == nil {
			return nil, &net.AddrError{Err: "not an IPv4 address", Addr: host}
		}

		copy(sa.Addr[:], ip4)
	}

	return sa, nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil
	}

	return &net.TCPAddr{
		IP:   net.IPv4(v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3]),
		Port: v4.Port,
	}
}
