// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"errors"
	"net"
	"os"
	"regexp"
	"syscall"
)

// unixSockAddr is the only address-parsing rule the core defines: a path
// beginning with "/" and ending in ".sock" selects the local filesystem
// transport; anything else is handed to the network resolver.
var unixSockAddr = regexp.MustCompile(`^/.*\.sock$`)

func isUnixSockAddr(address string) bool {
	return unixSockAddr.MatchString(address)
}

// listen opens a listener for address, selecting the Unix domain stream
// socket family or the TCP family per isUnixSockAddr. If the socket path
// already exists and binding fails with "address in use", the path is
// unlinked and bind is retried exactly once.
func listen(address string) (net.Listener, error) {
	if !isUnixSockAddr(address) {
		l, err := net.Listen("tcp", address)
		if err != nil {
			return nil, IOError("listen", err)
		}
		return l, nil
	}

	l, err := net.Listen("unix", address)
	if err == nil {
		return l, nil
	}
	if !isAddrInUse(err) {
		return nil, IOError("listen", err)
	}
	if rmErr := os.Remove(address); rmErr != nil {
		return nil, IOError("listen", err)
	}
	l, err = net.Listen("unix", address)
	if err != nil {
		return nil, IOError("listen", err)
	}
	return l, nil
}

// dial connects to address, selecting the transport family the same way
// listen does.
func dial(address string) (net.Conn, error) {
	network := "tcp"
	if isUnixSockAddr(address) {
		network = "unix"
	}
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, IOError("dial", err)
	}
	return conn, nil
}

func isAddrInUse(err error) bool {
	return os.IsExist(err) || errors.Is(err, syscall.EADDRINUSE)
}
