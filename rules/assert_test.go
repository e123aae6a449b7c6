package rules

import (
	"testing"

	reach "github.com/digineo/go-reach"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestAssertPasses(t *testing.T) {
	target, _ := reach.NewTarget("8.8.8.8", 53, 80, 443)
	rule := &Rule{
		Name:      "google",
		Address:   "8.8.8.8",
		Reachable: ptr(true),
		Ports:     Ports{Open: []uint16{53, 443}, Closed: []uint16{80}},
	}
	res := &reach.ProbeResult{
		Target:    target,
		Reachable: reach.Reachable,
		Ports: map[uint16]reach.PortResult{
			53:  {Reachable: true},
			80:  {},
			443: {Reachable: true},
		},
	}
	assert.Empty(t, Assert(rule, res))
}

func TestAssertFailures(t *testing.T) {
	assert := assert.New(t)

	target, _ := reach.NewTarget("example.com", 80, 443)
	rule := &Rule{
		Name:       "example",
		Address:    "example.com",
		Reachable:  ptr(false),
		Resolvable: ptr(true),
		Ports:      Ports{Open: []uint16{80}, Closed: []uint16{443}},
		HTTP: []HTTPExpectation{
			{URL: "https://example.com", Status: "200"},
			{URL: "http://example.com", NotStatus: "301", Connected: ptr(true)},
		},
		Command: &CommandExpectation{Run: "true", ExitCode: ptr(0), Stdout: ptr("")},
	}
	res := &reach.ProbeResult{
		Target:     target,
		Reachable:  reach.Reachable,
		Resolvable: false,
		Ports: map[uint16]reach.PortResult{
			80:  {},
			443: {Reachable: true},
		},
		HTTP: map[string]reach.HTTPStatus{
			"https://example.com": {URL: "https://example.com", Reason: "failed to connect", Code: "000"},
			"http://example.com":  {URL: "http://example.com", Connected: true, Code: "301"},
		},
		Command: &reach.CommandResult{ExitCode: 1},
	}

	failures := Assert(rule, res)
	checks := make([]string, 0, len(failures))
	for _, f := range failures {
		checks = append(checks, f.Check)
	}
	assert.Equal([]string{
		"icmp",
		"dns",
		"tcp/80",
		"tcp/443",
		"http https://example.com",
		"http http://example.com",
		"command",
	}, checks)

	assert.Equal("icmp: expected unreachable, got reachable", failures[0].String())
	assert.Equal("http https://example.com: expected status 200, got no response (failed to connect)", failures[4].String())
	assert.Equal("http http://example.com: expected status other than 301, got status 301", failures[5].String())
	assert.Equal("command: expected exit status 0, got exit status 1", failures[6].String())
}

func TestAssertSkipsErrored(t *testing.T) {
	target, _ := reach.NewTarget("example.com", 80)
	rule := &Rule{
		Name:       "example",
		Address:    "example.com",
		Reachable:  ptr(true),
		Resolvable: ptr(true),
		Ports:      Ports{Open: []uint16{80}},
		Command:    &CommandExpectation{Run: "curl x", Stdout: ptr("200")},
	}
	res := &reach.ProbeResult{
		Target:    target,
		Reachable: reach.Unknown,
		Ports:     map[uint16]reach.PortResult{80: {}},
		Command:   &reach.CommandResult{ExitCode: -1},
		Errors: []error{
			&reach.ProbeError{Check: reach.CheckReachability, Target: "example.com"},
			&reach.ProbeError{Check: reach.CheckResolvability, Target: "example.com"},
			&reach.ProbeError{Check: reach.CheckPort, Target: "example.com:80"},
			&reach.ProbeError{Check: reach.CheckCommand, Target: "curl x"},
		},
	}
	assert.Empty(t, Assert(rule, res))
}

func TestAssertCommandTimeout(t *testing.T) {
	rule := &Rule{
		Name:    "slow",
		Address: "localhost",
		Command: &CommandExpectation{Run: "sleep 10", ExitCode: ptr(0)},
	}
	res := &reach.ProbeResult{Command: &reach.CommandResult{ExitCode: -1, TimedOut: true}}

	failures := Assert(rule, res)
	if assert.Len(t, failures, 1) {
		assert.Equal(t, "command: expected completion, got timeout", failures[0].String())
	}
}
