package reach

import (
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Check names a kind of probe.
type Check string

const (
	CheckReachability  Check = "icmp"
	CheckPort          Check = "tcp"
	CheckResolvability Check = "dns"
	CheckCommand       Check = "command"
	CheckHTTP          Check = "http"
)

// Target identifies a host by IP literal or name, plus the TCP ports of
// interest. The zero value is not usable, see NewTarget.
type Target struct {
	address string
	ports   []uint16
}

// NewTarget builds an immutable Target. Ports are de-duplicated and sorted.
func NewTarget(address string, ports ...uint16) (Target, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Target{}, ErrEmptyAddress
	}

	ps := make([]uint16, 0, len(ports))
	for _, p := range ports {
		if p == 0 {
			return Target{}, ErrInvalidPort
		}
		ps = append(ps, p)
	}
	slices.Sort(ps)

	return Target{address: address, ports: slices.Compact(ps)}, nil
}

// Address returns the address as given.
func (t Target) Address() string { return t.address }

// Ports returns a copy of the port set.
func (t Target) Ports() []uint16 { return slices.Clone(t.ports) }

// IsLiteral reports whether the address is an IP literal.
func (t Target) IsLiteral() bool { return net.ParseIP(t.address) != nil }

func (t Target) String() string { return t.address }

// HostPort joins address and port the way the port checks report them.
func HostPort(address string, port uint16) string {
	return net.JoinHostPort(address, strconv.Itoa(int(port)))
}

// Timeouts bounds each kind of probe. A zero field means "use the default".
type Timeouts struct {
	ICMP    time.Duration
	TCP     time.Duration
	DNS     time.Duration
	Command time.Duration
}

// Default timeouts, mirroring "ping -W 1", "nc -w 1" and a short resolver budget.
const (
	DefaultICMPTimeout    = time.Second
	DefaultTCPTimeout     = time.Second
	DefaultDNSTimeout     = 2 * time.Second
	DefaultCommandTimeout = 10 * time.Second
)

// DefaultTimeouts returns the package defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ICMP:    DefaultICMPTimeout,
		TCP:     DefaultTCPTimeout,
		DNS:     DefaultDNSTimeout,
		Command: DefaultCommandTimeout,
	}
}

// Or fills the zero fields of t from fallback.
func (t Timeouts) Or(fallback Timeouts) Timeouts {
	if t.ICMP <= 0 {
		t.ICMP = fallback.ICMP
	}
	if t.TCP <= 0 {
		t.TCP = fallback.TCP
	}
	if t.DNS <= 0 {
		t.DNS = fallback.DNS
	}
	if t.Command <= 0 {
		t.Command = fallback.Command
	}
	return t
}

// CheckSet selects the probes to run for one evaluation.
type CheckSet struct {
	Reachability  bool        // one ICMP echo request
	Ports         bool        // one TCP connect per target port
	Resolvability bool        // DNS resolution of the address
	Command       string      // shell command, run once
	HTTP          []HTTPCheck // curl based status checks

	Timeouts Timeouts // per call overrides
}

// All selects reachability, ports and resolvability.
func All() CheckSet {
	return CheckSet{Reachability: true, Ports: true, Resolvability: true}
}

// Empty reports whether nothing is selected.
func (c CheckSet) Empty() bool {
	return !c.Reachability && !c.Ports && !c.Resolvability && c.Command == "" && len(c.HTTP) == 0
}
