package reach

import (
	"context"
	"errors"
	"net"
	"time"
)

// TCPProber checks whether a TCP handshake with (address, port) succeeds.
type TCPProber interface {
	Probe(ctx context.Context, address string, port uint16, timeout time.Duration) (reachable bool, err error)
	ProbeRTT(ctx context.Context, address string, port uint16, timeout time.Duration) (rtt time.Duration, reachable bool, err error)
}

// ConnectProber implements TCPProber with a plain connect(2). The
// connection is closed right after the handshake, no data is exchanged.
type ConnectProber struct {
	// Mark sets SO_MARK on the probe socket (Linux only). Zero disables it.
	Mark uint
}

var _ TCPProber = (*ConnectProber)(nil)

// NewConnectProber returns a ConnectProber without socket mark.
func NewConnectProber() *ConnectProber {
	return &ConnectProber{}
}

// Probe implements TCPProber.
func (c *ConnectProber) Probe(ctx context.Context, address string, port uint16, timeout time.Duration) (bool, error) {
	_, ok, err := c.ProbeRTT(ctx, address, port, timeout)
	return ok, err
}

// ProbeRTT implements TCPProber. Refused connections, resets, timeouts and
// unreachable networks yield false without error.
func (c *ConnectProber) ProbeRTT(ctx context.Context, address string, port uint16, timeout time.Duration) (time.Duration, bool, error) {
	hostport := HostPort(address, port)
	if port == 0 {
		return 0, false, probeError(CheckPort, hostport, ErrInvalidPort)
	}
	if timeout <= 0 {
		timeout = DefaultTCPTimeout
	}

	control, err := markControl(c.Mark)
	if err != nil {
		return 0, false, probeError(CheckPort, hostport, err)
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{
		Timeout: timeout,
		Control: control,
	}

	start := time.Now()
	conn, err := d.DialContext(dctx, "tcp", hostport)
	if err == nil {
		rtt := time.Since(start)
		conn.Close()
		return rtt, true, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return 0, false, probeError(CheckPort, hostport, ctx.Err())
	}
	if isNegative(err) {
		return 0, false, nil
	}
	return 0, false, probeError(CheckPort, hostport, err)
}
