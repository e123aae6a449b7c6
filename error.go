package reach

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAddress is returned by NewTarget for a blank address.
	ErrEmptyAddress = errors.New("empty target address")

	// ErrInvalidPort is returned by NewTarget for port 0.
	ErrInvalidPort = errors.New("invalid port 0")

	// ErrMarkUnsupported is returned when a socket mark is requested on a
	// platform without SO_MARK.
	ErrMarkUnsupported = errors.New("setting SO_MARK socket option is not supported on this platform")
)

// ProbeError reports that a check could not run at all. It is never used
// for a negative outcome (host down, port closed, name unknown).
type ProbeError struct {
	Check  Check
	Target string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe of %s: %v", e.Check, e.Target, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func probeError(check Check, target string, err error) *ProbeError {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProbeError{Check: check, Target: target, Err: err}
}

// timeoutError implements the net.Error interface. Originally taken from
// https://github.com/golang/go/blob/release-branch.go1.8/src/net/net.go#L505-L509
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
