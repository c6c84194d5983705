//go:build linux
// +build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr is the net.ListenConfig.Control callback that sets
// SO_REUSEADDR before bind, per spec.md §6's new_context ("opens the
// UDP socket with SO_REUSEADDR"). Mirrors the RawConn.Control idiom
// twamp's KernelDialer uses for its own sockopt (SO_BINDTODEVICE).
func setReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
