//go:build !linux

package reach

import "syscall"

func markControl(mark uint) (func(network, address string, c syscall.RawConn) error, error) {
	if mark == 0 {
		return nil, nil
	}
	return nil, ErrMarkUnsupported
}
