package reach

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// AddressResolver resolves a name to its addresses. A name that does not
// resolve is a normal outcome (resolvable=false, err=nil); err is reserved
// for a resolver that could not be used at all.
type AddressResolver interface {
	Resolve(ctx context.Context, name string, timeout time.Duration) (addrs []net.IP, resolvable bool, err error)
}

// LiteralPolicy decides whether an IP literal counts as resolvable.
type LiteralPolicy int

const (
	// LiteralSelf treats an IP literal as resolving to itself.
	LiteralSelf LiteralPolicy = iota

	// LiteralReverse requires at least one PTR record for the literal.
	LiteralReverse
)

func (p LiteralPolicy) String() string {
	if p == LiteralReverse {
		return "reverse"
	}
	return "self"
}

// ParseLiteralPolicy parses "self" or "reverse".
func ParseLiteralPolicy(s string) (LiteralPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "self":
		return LiteralSelf, nil
	case "reverse", "ptr":
		return LiteralReverse, nil
	}
	return LiteralSelf, fmt.Errorf("invalid literal policy %q", s)
}

// lookuper is satisfied by *net.Resolver.
type lookuper interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// SystemResolver uses the operating system's resolver configuration.
type SystemResolver struct {
	Literals LiteralPolicy
	Timeout  time.Duration // used when Resolve gets no timeout

	lookup lookuper
}

var _ AddressResolver = (*SystemResolver)(nil)

// NewResolver returns a resolver backed by net.DefaultResolver.
func NewResolver(literals LiteralPolicy) *SystemResolver {
	return &SystemResolver{
		Literals: literals,
		Timeout:  DefaultDNSTimeout,
		lookup:   net.DefaultResolver,
	}
}

// Resolve implements AddressResolver.
func (r *SystemResolver) Resolve(ctx context.Context, name string, timeout time.Duration) ([]net.IP, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, nil
	}
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}

	lookup := r.lookup
	if lookup == nil {
		lookup = net.DefaultResolver
	}

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if ip := net.ParseIP(name); ip != nil {
		if r.Literals != LiteralReverse {
			return []net.IP{ip}, true, nil
		}

		names, err := lookup.LookupAddr(lctx, name)
		if err != nil {
			return nil, false, classifyLookup(ctx, name, err)
		}
		if len(names) == 0 {
			return nil, false, nil
		}
		return []net.IP{ip}, true, nil
	}

	addrs, err := lookup.LookupIPAddr(lctx, name)
	if err != nil {
		return nil, false, classifyLookup(ctx, name, err)
	}
	if len(addrs) == 0 {
		return nil, false, nil
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, true, nil
}

// classifyLookup maps a lookup error to nil (negative result) or to a
// *ProbeError. NXDOMAIN, timeouts, SERVFAIL and missing nameservers are
// all reported by the resolver as *net.DNSError.
func classifyLookup(parent context.Context, name string, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return probeError(CheckResolvability, name, parent.Err())
	}

	var de *net.DNSError
	if errors.As(err, &de) {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return probeError(CheckResolvability, name, err)
}
