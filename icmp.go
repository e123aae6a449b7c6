package reach

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// ICMPProber checks reachability with a single ICMP echo request.
type ICMPProber interface {
	Probe(ctx context.Context, address string, timeout time.Duration) (reachable bool, err error)
	ProbeRTT(ctx context.Context, address string, timeout time.Duration) (rtt time.Duration, reachable bool, err error)
}

// EchoProber implements ICMPProber on top of a Pinger. Names are resolved
// first with Resolver; a name that does not resolve is not reachable.
type EchoProber struct {
	Pinger     *Pinger
	Resolver   AddressResolver
	DNSTimeout time.Duration
}

var _ ICMPProber = (*EchoProber)(nil)

// NewEchoProber returns an EchoProber.
func NewEchoProber(pinger *Pinger, resolver AddressResolver) *EchoProber {
	return &EchoProber{
		Pinger:     pinger,
		Resolver:   resolver,
		DNSTimeout: DefaultDNSTimeout,
	}
}

// Probe implements ICMPProber.
func (e *EchoProber) Probe(ctx context.Context, address string, timeout time.Duration) (bool, error) {
	_, ok, err := e.ProbeRTT(ctx, address, timeout)
	return ok, err
}

// ProbeRTT implements ICMPProber. It never retries.
func (e *EchoProber) ProbeRTT(ctx context.Context, address string, timeout time.Duration) (time.Duration, bool, error) {
	if err := e.Pinger.Open(); err != nil {
		return 0, false, probeError(CheckReachability, address, err)
	}

	remote, err := e.remote(ctx, address)
	if err != nil {
		return 0, false, err
	}
	if remote == nil {
		return 0, false, nil
	}

	rtt, err := e.Pinger.PingRTT(ctx, remote, timeout)
	switch {
	case err == nil:
		return rtt, true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, ErrSocketMissing):
		return 0, false, probeError(CheckReachability, address, err)
	case isNegative(err):
		return 0, false, nil
	default:
		return 0, false, probeError(CheckReachability, address, err)
	}
}

// remote returns the address to ping, or nil if address does not resolve.
func (e *EchoProber) remote(ctx context.Context, address string) (*net.IPAddr, error) {
	host, zone, _ := strings.Cut(address, "%")
	if ip := net.ParseIP(host); ip != nil {
		return &net.IPAddr{IP: ip, Zone: zone}, nil
	}
	if e.Resolver == nil {
		return nil, probeError(CheckReachability, address, errors.New("no resolver for host name"))
	}

	ips, ok, err := e.Resolver.Resolve(ctx, address, e.DNSTimeout)
	if err != nil {
		return nil, probeError(CheckReachability, address, err)
	}
	if !ok {
		return nil, nil
	}

	// prefer an address family we have a socket for, IPv4 first
	var fallback net.IP
	for _, ip := range ips {
		if !e.Pinger.conn.Supports(ip) {
			continue
		}
		if ip.To4() != nil {
			return &net.IPAddr{IP: ip}, nil
		}
		if fallback == nil {
			fallback = ip
		}
	}
	if fallback != nil {
		return &net.IPAddr{IP: fallback}, nil
	}
	return &net.IPAddr{IP: ips[0]}, nil
}
