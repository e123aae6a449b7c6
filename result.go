package reach

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
)

// Reachability is the outcome of the ICMP check. Unknown covers both "not
// requested" and "the probe could not run".
type Reachability int8

const (
	Unknown Reachability = iota
	Unreachable
	Reachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Reachability) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reachability) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reachable":
		*r = Reachable
	case "unreachable":
		*r = Unreachable
	case "unknown", "":
		*r = Unknown
	default:
		return fmt.Errorf("invalid reachability %q", b)
	}
	return nil
}

// PortResult is the outcome of a TCP connect.
type PortResult struct {
	Reachable bool
	RTT       time.Duration // handshake duration, if reachable
}

// CommandResult holds the outcome of a shell command. Stdout is kept
// verbatim so it can be compared to literals like "200".
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// ProbeResult aggregates the outcome of all checks of one evaluation.
// Fields of checks that were not requested keep their zero value.
type ProbeResult struct {
	Target Target

	Reachable Reachability
	RTT       time.Duration

	Resolvable bool
	Addresses  []net.IP

	Ports   map[uint16]PortResult
	Command *CommandResult
	HTTP    map[string]HTTPStatus

	// Errors lists the checks that could not run, as *ProbeError.
	Errors []error

	CheckedAt time.Time
	Duration  time.Duration
}

// IsReachable reports a positive ICMP result.
func (r *ProbeResult) IsReachable() bool {
	return r.Reachable == Reachable
}

// PortReachable reports a positive TCP result for port. Unprobed ports
// are reported as not reachable.
func (r *ProbeResult) PortReachable(port uint16) bool {
	return r.Ports[port].Reachable
}

// Err combines all infrastructure errors, or returns nil.
func (r *ProbeResult) Err() error {
	return multierr.Combine(r.Errors...)
}

// ErrFor returns the first infrastructure error of check whose subject
// matches, or nil. The subject is the address for reachability and
// resolvability, HostPort(address, port) for ports, the URL for HTTP and
// the command line for commands. An empty subject matches any.
func (r *ProbeResult) ErrFor(check Check, subject string) error {
	for _, err := range r.Errors {
		var pe *ProbeError
		if !errors.As(err, &pe) || pe.Check != check {
			continue
		}
		if subject == "" || pe.Target == subject {
			return err
		}
	}
	return nil
}
