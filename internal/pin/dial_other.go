//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package pin

import (
	"syscall"

	"github.com/juju/errors"
)

func controlBroadcast(network, address string, c syscall.RawConn) error {
	return errors.NotSupportedf("broadcast peer on this platform")
}
