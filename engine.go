package reach

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"sync"
	"time"
)

// Evaluator is implemented by Engine. Consumers should depend on this
// interface so they can be tested with canned results.
type Evaluator interface {
	Evaluate(ctx context.Context, target Target, checks CheckSet) ProbeResult
}

// Options configure NewEngine.
type Options struct {
	Timeouts Timeouts // zero fields use the package defaults

	Bind4, Bind6 string // ICMP bind addresses, empty disables the family
	ICMPMode     Mode
	PayloadSize  uint16 // ICMP payload, zero keeps the default

	Literals LiteralPolicy
	Mark     uint // SO_MARK for TCP probes
}

// DefaultOptions binds ICMP to all addresses of both families.
func DefaultOptions() Options {
	return Options{
		Timeouts: DefaultTimeouts(),
		Bind4:    "0.0.0.0",
		Bind6:    "::",
	}
}

// Engine evaluates targets. It keeps no per-target state; one Engine can
// be shared by any number of goroutines.
type Engine struct {
	Resolver AddressResolver
	ICMP     ICMPProber
	TCP      TCPProber
	Runner   CommandRunner
	Timeouts Timeouts

	pinger *Pinger
}

var _ Evaluator = (*Engine)(nil)

// NewEngine wires the default components. ICMP sockets are opened on the
// first reachability check; call Close() when done.
func NewEngine(opts Options) *Engine {
	t := opts.Timeouts.Or(DefaultTimeouts())

	resolver := NewResolver(opts.Literals)
	resolver.Timeout = t.DNS

	pinger := NewPinger(opts.Bind4, opts.Bind6, opts.ICMPMode)
	if opts.PayloadSize > 0 {
		pinger.SetPayloadSize(opts.PayloadSize)
	}

	echo := NewEchoProber(pinger, resolver)
	echo.DNSTimeout = t.DNS

	return &Engine{
		Resolver: resolver,
		ICMP:     echo,
		TCP:      &ConnectProber{Mark: opts.Mark},
		Runner:   NewShellRunner(),
		Timeouts: t,
		pinger:   pinger,
	}
}

// Pinger returns the Pinger created by NewEngine, or nil.
func (e *Engine) Pinger() *Pinger {
	return e.pinger
}

// WithLiterals returns a copy of e whose resolvability checks apply the
// literal policy p. The copy shares the ICMP sockets of e, only e needs
// to be closed.
func (e *Engine) WithLiterals(p LiteralPolicy) *Engine {
	c := *e
	if r, ok := e.Resolver.(*SystemResolver); ok {
		nr := *r
		nr.Literals = p
		c.Resolver = &nr
	}
	return &c
}

// Close releases the ICMP sockets.
func (e *Engine) Close() {
	if e.pinger != nil {
		e.pinger.Close()
	}
}

var errNotConfigured = errors.New("no prober configured")

// Evaluate runs the selected checks concurrently and merges their results.
// A check that fails to run is recorded in ProbeResult.Errors and does not
// affect the others. Evaluate returns once every check has finished or hit
// its own timeout, so its latency is bounded by the largest timeout.
func (e *Engine) Evaluate(ctx context.Context, target Target, checks CheckSet) ProbeResult {
	t := checks.Timeouts.Or(e.Timeouts).Or(DefaultTimeouts())
	addr := target.Address()

	res := ProbeResult{
		Target:    target,
		CheckedAt: time.Now(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	fail := func(err error) {
		res.Errors = append(res.Errors, err)
	}

	if checks.Reachability {
		run(func() {
			var (
				rtt time.Duration
				ok  bool
				err error
			)
			if e.ICMP == nil {
				err = probeError(CheckReachability, addr, errNotConfigured)
			} else {
				rtt, ok, err = e.ICMP.ProbeRTT(ctx, addr, t.ICMP)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Reachable = Unknown
				fail(err)
			case ok:
				res.Reachable = Reachable
				res.RTT = rtt
			default:
				res.Reachable = Unreachable
			}
		})
	}

	if checks.Ports {
		ports := target.Ports()
		res.Ports = make(map[uint16]PortResult, len(ports))
		for _, port := range ports {
			run(func() {
				var (
					rtt time.Duration
					ok  bool
					err error
				)
				if e.TCP == nil {
					err = probeError(CheckPort, HostPort(addr, port), errNotConfigured)
				} else {
					rtt, ok, err = e.TCP.ProbeRTT(ctx, addr, port, t.TCP)
				}

				mu.Lock()
				defer mu.Unlock()
				res.Ports[port] = PortResult{Reachable: ok, RTT: rtt}
				if err != nil {
					fail(err)
				}
			})
		}
	}

	if checks.Resolvability {
		run(func() {
			var (
				addrs []net.IP
				ok    bool
				err   error
			)
			if e.Resolver == nil {
				err = probeError(CheckResolvability, addr, errNotConfigured)
			} else {
				addrs, ok, err = e.Resolver.Resolve(ctx, addr, t.DNS)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Resolvable = ok
			res.Addresses = addrs
			if err != nil {
				fail(err)
			}
		})
	}

	if checks.Command != "" {
		run(func() {
			var (
				out CommandResult
				err error
			)
			if e.Runner == nil {
				err = probeError(CheckCommand, checks.Command, errNotConfigured)
			} else {
				out, err = e.Runner.Run(ctx, checks.Command, t.Command)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Command = &out
			if err != nil {
				fail(err)
			}
		})
	}

	if len(checks.HTTP) > 0 {
		res.HTTP = make(map[string]HTTPStatus, len(checks.HTTP))
		for _, h := range checks.HTTP {
			run(func() {
				var (
					st  HTTPStatus
					err error
				)
				if e.Runner == nil {
					st, err = HTTPStatus{URL: h.URL}, probeError(CheckHTTP, h.URL, errNotConfigured)
				} else {
					st, err = h.Run(ctx, e.Runner, t.Command)
				}

				mu.Lock()
				defer mu.Unlock()
				res.HTTP[h.URL] = st
				if err != nil {
					fail(err)
				}
			})
		}
	}

	wg.Wait()

	// arrival order is random, keep results comparable
	slices.SortFunc(res.Errors, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})
	res.Duration = time.Since(res.CheckedAt)

	for _, err := range res.Errors {
		log.Errorf("evaluate %s: %v", target, err)
	}
	return res
}
