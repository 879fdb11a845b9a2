//go:build !unix && !windows

package devserve

// IsAddrInUse always reports false where the platform has no such error code.
func IsAddrInUse(err error) bool {
	return false
}
