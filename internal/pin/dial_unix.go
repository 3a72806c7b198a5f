//go:build linux || darwin || freebsd || netbsd || openbsd

package pin

import (
	"syscall"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

func controlBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(serr, "setsockopt SO_BROADCAST")
}
