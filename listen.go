package devserve

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// PortInUseError is returned by Listen when another socket already owns the
// requested address.
type PortInUseError struct {
	Addr string
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("address %s already in use", e.Addr)
}

func (e *PortInUseError) Unwrap() error { return e.Err }

// Listen binds addr. addr may carry a "unix:", "tcp:", "tcp4:" or "tcp6:"
// prefix; anything else is a TCP address.
func Listen(addr string) (net.Listener, error) {
	network, address := "tcp", addr
	protos := strings.SplitN(addr, ":", 2)
	if len(protos) == 2 {
		switch protos[0] {
		case "unix", "tcp", "tcp4", "tcp6":
			network, address = protos[0], protos[1]
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		if IsAddrInUse(err) {
			return nil, &PortInUseError{Addr: address, Err: err}
		}
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}
	return ln, nil
}

// ListenPort binds host:port over TCP. An empty host means all interfaces.
func ListenPort(host string, port int) (net.Listener, error) {
	return Listen(net.JoinHostPort(host, fmt.Sprint(port)))
}
