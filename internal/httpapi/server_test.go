package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/monitor"
)

type staticEvaluator struct {
	mtx    sync.Mutex
	checks []reach.CheckSet
}

func (s *staticEvaluator) Evaluate(_ context.Context, t reach.Target, checks reach.CheckSet) reach.ProbeResult {
	s.mtx.Lock()
	s.checks = append(s.checks, checks)
	s.mtx.Unlock()

	res := reach.ProbeResult{Target: t, CheckedAt: time.Now(), Duration: 3 * time.Millisecond}
	if checks.Reachability {
		res.Reachable, res.RTT = reach.Reachable, 2*time.Millisecond
	}
	if checks.Resolvability {
		res.Resolvable = true
		res.Addresses = []net.IP{net.ParseIP("192.0.2.1")}
	}
	if checks.Ports {
		res.Ports = map[uint16]reach.PortResult{}
		for _, p := range t.Ports() {
			res.Ports[p] = reach.PortResult{Reachable: p == 443}
		}
	}
	if checks.Command != "" {
		res.Command = &reach.CommandResult{Stdout: "200"}
	}
	for _, h := range checks.HTTP {
		if res.HTTP == nil {
			res.HTTP = map[string]reach.HTTPStatus{}
		}
		res.HTTP[h.URL] = reach.HTTPStatus{URL: h.URL, Connected: true, Code: "200"}
	}
	return res
}

func newTestServer() (*Server, *staticEvaluator) {
	eval := &staticEvaluator{}
	return NewServer(zap.NewNop(), eval), eval
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s.Router(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestEvaluate(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s, eval := newTestServer()
	s.Timeouts = reach.Timeouts{TCP: 2 * time.Second}

	rec := do(t, s.Router(), http.MethodPost, "/api/evaluate",
		`{"address":"example.com","ports":[443,80],"reachability":true,"resolvability":true,"timeouts":{"icmp_ms":500}}`)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal("application/json", rec.Header().Get("Content-Type"))

	var out map[string]any
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal("example.com", out["address"])
	assert.Equal("reachable", out["reachable"])
	assert.Equal(true, out["resolvable"])
	assert.Equal([]any{"192.0.2.1"}, out["addresses"])
	assert.Equal(map[string]any{
		"80":  map[string]any{"reachable": false},
		"443": map[string]any{"reachable": true},
	}, out["ports"])
	assert.NotContains(out, "command")
	assert.NotContains(out, "errors")

	require.Len(eval.checks, 1)
	assert.Equal(500*time.Millisecond, eval.checks[0].Timeouts.ICMP)
	assert.Equal(2*time.Second, eval.checks[0].Timeouts.TCP)
	assert.True(eval.checks[0].Ports)
}

func TestEvaluateDefaultsToAll(t *testing.T) {
	s, eval := newTestServer()

	rec := do(t, s.Router(), http.MethodPost, "/api/evaluate", `{"address":"192.0.2.1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eval.checks, 1)
	assert.True(t, eval.checks[0].Reachability)
	assert.True(t, eval.checks[0].Resolvability)
}

func TestEvaluateRejects(t *testing.T) {
	s, eval := newTestServer()
	router := s.Router()

	for body, code := range map[string]int{
		`not json`:                                                       http.StatusBadRequest,
		`{"address":"x","colour":"red"}`:                                 http.StatusBadRequest,
		`{"address":""}`:                                                 http.StatusBadRequest,
		`{"address":"x","ports":[0]}`:                                    http.StatusBadRequest,
		`{"address":"x","http":[{"url":"http://x"},{"url":"http://x"}]}`: http.StatusBadRequest,
		`{"address":"x","command":"id"}`:                                 http.StatusForbidden,
		`{"address":"x","http":[{"url":"http://x"}]}`:                    http.StatusForbidden,
	} {
		rec := do(t, router, http.MethodPost, "/api/evaluate", body)
		assert.Equal(t, code, rec.Code, body)
	}
	assert.Empty(t, eval.checks)
}

func TestEvaluateCommandsAllowed(t *testing.T) {
	s, _ := newTestServer()
	s.AllowCommands = true

	rec := do(t, s.Router(), http.MethodPost, "/api/evaluate",
		`{"address":"x","command":"printf 200","http":[{"url":"http://x","connect_timeout_ms":3000}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Command)
	assert.Equal(t, "200", out.Command.Stdout)
	require.Len(t, out.HTTP, 1)
	assert.True(t, out.HTTP[0].Connected)
	assert.Nil(t, out.Reachable)
}

func TestRules(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s, _ := newTestServer()
	body := `
rules:
  - name: web
    address: example.com
    reachable: true
    ports:
      open: [443]
      closed: [80]
  - name: mail
    address: example.com
    ports:
      open: [25]
`
	rec := do(t, s.Router(), http.MethodPost, "/api/rules", body)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())

	var out report
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(1, out.Passed)
	assert.Equal(1, out.Failed)
	assert.Equal(1, out.ExitCode)
	require.Len(out.Outcomes, 2)
	assert.True(out.Outcomes[0].Passed)
	assert.Equal("tcp/25", out.Outcomes[1].Failures[0].Check)

	rec = do(t, s.Router(), http.MethodPost, "/api/rules?rule=mail", body)
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(out.Outcomes, 1)

	rec = do(t, s.Router(), http.MethodPost, "/api/rules", "rules: []")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestRulesLiteralPolicy(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	body := `
literal_policy: reverse
rules:
  - name: doc
    address: 192.0.2.1
    resolvable: true
`

	// without WithLiterals the policy cannot be honoured
	s, eval := newTestServer()
	rec := do(t, s.Router(), http.MethodPost, "/api/rules", body)
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Contains(rec.Body.String(), "reverse")
	assert.Empty(eval.checks)

	var requested []reach.LiteralPolicy
	strict := &staticEvaluator{}
	s.WithLiterals = func(p reach.LiteralPolicy) reach.Evaluator {
		requested = append(requested, p)
		return strict
	}
	rec = do(t, s.Router(), http.MethodPost, "/api/rules", body)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal([]reach.LiteralPolicy{reach.LiteralReverse}, requested)
	assert.Len(strict.checks, 1)
	assert.Empty(eval.checks)

	// the server's own policy needs no other evaluator
	s.Literals = reach.LiteralReverse
	rec = do(t, s.Router(), http.MethodPost, "/api/rules", body)
	require.Equal(http.StatusOK, rec.Code)
	assert.Len(requested, 1)
	assert.Len(eval.checks, 1)
}

func TestMetrics(t *testing.T) {
	assert := assert.New(t)

	s, eval := newTestServer()
	rec := do(t, s.Router(), http.MethodGet, "/api/metrics", "")
	assert.Equal(http.StatusNotFound, rec.Code)

	s.Monitor = monitor.New(eval, 10*time.Millisecond)
	target, _ := reach.NewTarget("192.0.2.1")
	s.Monitor.AddTarget("a", target, reach.CheckSet{Reachability: true})
	s.Monitor.Start()
	defer s.Monitor.Stop()

	assert.Eventually(func() bool {
		return len(s.Monitor.Export()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s.Router(), http.MethodGet, "/api/metrics/a", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"reachability"`)

	rec = do(t, s.Router(), http.MethodGet, "/api/metrics/b", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}
