package reach

import (
	"os"
	"syscall"
)

// markControl returns a net.Dialer Control function which sets SO_MARK on
// the socket before connecting, so that policy routing and firewall rules
// matching on fwmark apply to the probe.
func markControl(mark uint) (func(network, address string, c syscall.RawConn) error, error) {
	if mark == 0 {
		return nil, nil
	}

	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = os.NewSyscallError(
				"setsockopt",
				syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_MARK, int(mark)),
			)
		})
		if err != nil {
			return err
		}
		return sockErr
	}, nil
}
