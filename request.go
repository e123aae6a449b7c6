package reach

import (
	"net"
	"sync"
	"time"
)

// A request is a currently running ICMP echo request waiting for an answer.
type request struct {
	remote net.IP
	wait   chan struct{}
	once   sync.Once
	result error

	tStart time.Time
	tStop  time.Time
}

func newRequest(remote net.IP) *request {
	return &request{
		remote: remote,
		wait:   make(chan struct{}),
	}
}

// respond is responsible for finishing this request. It takes an error
// as failure reason. Only the first answer counts.
func (req *request) respond(err error, tRecv time.Time) {
	req.once.Do(func() {
		req.result = err
		req.tStop = tRecv
		close(req.wait)
	})
}

func (req *request) roundTripTime() time.Duration {
	if req.tStop.Before(req.tStart) {
		return 0
	}
	return req.tStop.Sub(req.tStart)
}
