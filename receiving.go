package reach

import (
	"net"
	"time"

	"golang.org/x/net/icmp"
)

// process will finish a currently running Echo Request, if the body is
// an ICMP Echo reply (or an ICMP error quoting a request) from us.
func (p *Pinger) process(body *icmp.Echo, icmpError error, addr net.IPAddr, tRecv time.Time) {
	p.mtx.Lock()
	req := p.requests[uint16(body.Seq)]
	p.mtx.Unlock()

	if req == nil {
		return
	}

	// errors come from routers on the path, replies from the target itself
	if icmpError == nil && !req.remote.Equal(addr.IP) {
		return
	}

	req.respond(icmpError, tRecv)
}
