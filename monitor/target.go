package monitor

import (
	"sync"

	reach "github.com/digineo/go-reach"
)

// target represents a monitored target.
type target struct {
	target reach.Target
	checks reach.CheckSet

	reachability  *History
	resolvability *History
	ports         map[uint16]*History
	http          map[string]*History // keyed by URL
	command       *History

	last    reach.ProbeResult
	running bool // an evaluation is in progress
	sync.Mutex
}

func newTarget(t reach.Target, checks reach.CheckSet, size int) *target {
	tg := &target{
		target: t,
		checks: checks,
	}
	if checks.Reachability {
		tg.reachability = NewHistory(size)
	}
	if checks.Resolvability {
		tg.resolvability = NewHistory(size)
	}
	if checks.Ports {
		tg.ports = make(map[uint16]*History)
		for _, port := range t.Ports() {
			tg.ports[port] = NewHistory(size)
		}
	}
	for _, h := range checks.HTTP {
		if tg.http == nil {
			tg.http = make(map[string]*History, len(checks.HTTP))
		}
		tg.http[h.URL] = NewHistory(size)
	}
	if checks.Command != "" {
		tg.command = NewHistory(size)
	}
	return tg
}

// record adds the outcomes of res to the histories.
func (t *target) record(res reach.ProbeResult) {
	t.Lock()
	t.last = res
	t.Unlock()

	if t.reachability != nil {
		switch res.Reachable {
		case reach.Reachable:
			t.reachability.Add(res.RTT, Up)
		case reach.Unreachable:
			t.reachability.Add(0, Down)
		default:
			t.reachability.Add(0, Failed)
		}
	}

	addr := t.target.Address()
	if t.resolvability != nil {
		switch {
		case res.Resolvable:
			t.resolvability.Add(0, Up)
		case res.ErrFor(reach.CheckResolvability, addr) != nil:
			t.resolvability.Add(0, Failed)
		default:
			t.resolvability.Add(0, Down)
		}
	}

	for port, h := range t.ports {
		pr, found := res.Ports[port]
		switch {
		case !found, res.ErrFor(reach.CheckPort, reach.HostPort(addr, port)) != nil:
			h.Add(0, Failed)
		case pr.Reachable:
			h.Add(pr.RTT, Up)
		default:
			h.Add(0, Down)
		}
	}

	for url, h := range t.http {
		st, found := res.HTTP[url]
		switch {
		case !found, res.ErrFor(reach.CheckHTTP, url) != nil:
			h.Add(0, Failed)
		case st.Connected:
			h.Add(st.Result.Duration, Up)
		default:
			h.Add(0, Down)
		}
	}

	if t.command != nil {
		c := res.Command
		switch {
		case c == nil, res.ErrFor(reach.CheckCommand, "") != nil:
			t.command.Add(0, Failed)
		case c.ExitCode == 0 && !c.TimedOut:
			t.command.Add(c.Duration, Up)
		default:
			t.command.Add(0, Down)
		}
	}
}

func (t *target) metrics(clear bool) *TargetMetrics {
	compute := (*History).Compute
	if clear {
		compute = (*History).ComputeAndClear
	}

	var m TargetMetrics
	if t.reachability != nil {
		m.Reachability = compute(t.reachability)
	}
	if t.resolvability != nil {
		m.Resolvability = compute(t.resolvability)
	}
	for port, h := range t.ports {
		if pm := compute(h); pm != nil {
			if m.Ports == nil {
				m.Ports = make(map[uint16]*Metrics, len(t.ports))
			}
			m.Ports[port] = pm
		}
	}
	for url, h := range t.http {
		if hm := compute(h); hm != nil {
			if m.HTTP == nil {
				m.HTTP = make(map[string]*Metrics, len(t.http))
			}
			m.HTTP[url] = hm
		}
	}
	if t.command != nil {
		m.Command = compute(t.command)
	}
	if m.Reachability == nil && m.Resolvability == nil && m.Ports == nil && m.HTTP == nil && m.Command == nil {
		return nil
	}
	return &m
}

