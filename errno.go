package reach

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/digineo/go-reach/internal"
)

// negativeErrnos are answers of the network (or the local firewall) about
// the destination. They make a probe fail, but the probe did run.
var negativeErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.ETIMEDOUT,
	syscall.EPERM,  // dropped by a local OUTPUT rule
	syscall.EACCES, // e.g. broadcast destination without SO_BROADCAST
	syscall.EADDRNOTAVAIL,
}

// isNegative reports whether err describes a destination that did not
// answer, as opposed to a probe that could not be performed.
func isNegative(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var icmpErr *internal.ICMPError
	if errors.As(err, &icmpErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, e := range negativeErrnos {
			if errno == e {
				return true
			}
		}
	}
	return false
}
