package reach

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// sequence number for this process
var sequence uint32

// PingRTT sends exactly one ICMP echo request to remote and waits up to
// timeout for the answer. It returns the round trip time on success, a
// net.Error with Timeout() == true when no answer arrived in time, and an
// *internal.ICMPError when a router reported the destination unreachable.
func (p *Pinger) PingRTT(ctx context.Context, remote *net.IPAddr, timeout time.Duration) (time.Duration, error) {
	if err := p.Open(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !p.conn.Supports(remote.IP) {
		return 0, ErrSocketMissing
	}
	if timeout <= 0 {
		timeout = DefaultICMPTimeout
	}

	seq := uint16(atomic.AddUint32(&sequence, 1))
	req := newRequest(remote.IP)

	// enqueue in currently running requests
	p.mtx.Lock()
	p.requests[seq] = req
	p.mtx.Unlock()

	defer func() {
		p.mtx.Lock()
		if p.requests[seq] == req {
			delete(p.requests, seq)
		}
		p.mtx.Unlock()
	}()

	p.payloadMu.RLock()
	req.tStart = time.Now()
	err := p.conn.WriteTo(remote, int(seq), p.payload)
	p.payloadMu.RUnlock()
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.wait:
		if req.result != nil {
			return 0, req.result
		}
		return req.roundTripTime(), nil
	case <-timer.C:
		return 0, &timeoutError{}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return 0, &timeoutError{}
		}
		return 0, ctx.Err()
	}
}
