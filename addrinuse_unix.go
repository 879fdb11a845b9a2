//go:build unix

package devserve

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsAddrInUse reports whether err was caused by binding an address that is
// already taken.
func IsAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
