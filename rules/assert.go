package rules

import (
	"fmt"
	"strconv"

	reach "github.com/digineo/go-reach"
)

// Failure is an expectation which did not hold.
type Failure struct {
	Check    string `json:"check"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", f.Check, f.Expected, f.Actual)
}

// Assert compares res with the expectations of r. Checks which could not
// run are skipped, their errors are in res.Errors.
func Assert(r *Rule, res *reach.ProbeResult) []Failure {
	var failures []Failure
	fail := func(check, expected, actual string) {
		failures = append(failures, Failure{Check: check, Expected: expected, Actual: actual})
	}
	addr := res.Target.Address()

	if r.Reachable != nil && res.Reachable != reach.Unknown {
		if want := *r.Reachable; want != res.IsReachable() {
			fail("icmp", reachability(want), res.Reachable.String())
		}
	}

	if r.Resolvable != nil && res.ErrFor(reach.CheckResolvability, "") == nil {
		if want := *r.Resolvable; want != res.Resolvable {
			fail("dns", resolvability(want), resolvability(res.Resolvable))
		}
	}

	port := func(p uint16, want bool) {
		if res.ErrFor(reach.CheckPort, reach.HostPort(addr, p)) != nil {
			return
		}
		if got := res.PortReachable(p); got != want {
			fail("tcp/"+strconv.Itoa(int(p)), portState(want), portState(got))
		}
	}
	for _, p := range r.Ports.Open {
		port(p, true)
	}
	for _, p := range r.Ports.Closed {
		port(p, false)
	}

	for _, h := range r.HTTP {
		if res.ErrFor(reach.CheckHTTP, h.URL) != nil {
			continue
		}
		st, found := res.HTTP[h.URL]
		if !found {
			fail("http "+h.URL, "a result", "nothing")
			continue
		}

		if h.Connected != nil && *h.Connected != st.Connected {
			fail("http "+h.URL, connection(*h.Connected), describe(st))
		}
		if h.Status != "" && !st.Matches(h.Status) {
			fail("http "+h.URL, "status "+h.Status, describe(st))
		}
		if h.NotStatus != "" && st.Matches(h.NotStatus) {
			fail("http "+h.URL, "status other than "+h.NotStatus, describe(st))
		}
	}

	if c := r.Command; c != nil && res.ErrFor(reach.CheckCommand, c.Run) == nil {
		out := res.Command
		switch {
		case out == nil:
			fail("command", "a result", "nothing")
		case out.TimedOut && (c.Stdout != nil || c.ExitCode != nil):
			fail("command", "completion", "timeout")
		default:
			if c.Stdout != nil && *c.Stdout != out.Stdout {
				fail("command", strconv.Quote(*c.Stdout), strconv.Quote(out.Stdout))
			}
			if c.ExitCode != nil && *c.ExitCode != out.ExitCode {
				fail("command", "exit status "+strconv.Itoa(*c.ExitCode), "exit status "+strconv.Itoa(out.ExitCode))
			}
		}
	}

	return failures
}

func reachability(ok bool) string {
	if ok {
		return reach.Reachable.String()
	}
	return reach.Unreachable.String()
}

func resolvability(ok bool) string {
	if ok {
		return "resolvable"
	}
	return "unresolvable"
}

func portState(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func connection(ok bool) string {
	if ok {
		return "a response"
	}
	return "no response"
}

// describe summarizes an HTTP outcome for failure messages.
func describe(st reach.HTTPStatus) string {
	if st.Connected {
		return "status " + st.Code
	}
	if st.Reason != "" {
		return "no response (" + st.Reason + ")"
	}
	return "no response"
}
