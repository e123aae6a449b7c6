package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/monitor"
	"github.com/digineo/go-reach/rules"
)

const maxBody = 1 << 20

var errNoMonitor = errors.New("monitoring disabled")

// Server exposes an Evaluator over HTTP. Its fields must not be changed
// while requests are served.
type Server struct {
	Logger    *zap.Logger
	Evaluator reach.Evaluator
	Monitor   *monitor.Monitor // optional, serves /api/metrics

	Timeouts      reach.Timeouts
	Concurrency   int
	AllowCommands bool

	// Literals is the literal policy of Evaluator. Rules files asking for
	// another policy are evaluated with WithLiterals, or refused if it is
	// nil.
	Literals     reach.LiteralPolicy
	WithLiterals func(reach.LiteralPolicy) reach.Evaluator
}

// NewServer returns a Server logging to l and evaluating with e.
func NewServer(l *zap.Logger, e reach.Evaluator) *Server {
	return &Server{Logger: l, Evaluator: e}
}

// Router returns the HTTP handler of the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/evaluate", s.handleEvaluate)
	r.Post("/api/rules", s.handleRules)
	r.Get("/api/metrics", s.handleMetrics)
	r.Get("/api/metrics/{key}", s.handleMetrics)

	return r
}

type httpPayload struct {
	URL              string `json:"url"`
	ConnectTimeoutMS int    `json:"connect_timeout_ms"`
	MaxTimeMS        int    `json:"max_time_ms"`
}

type timeoutsPayload struct {
	ICMP    int `json:"icmp_ms"`
	TCP     int `json:"tcp_ms"`
	DNS     int `json:"dns_ms"`
	Command int `json:"command_ms"`
}

type evaluatePayload struct {
	Address       string          `json:"address"`
	Ports         []uint16        `json:"ports"`
	Reachability  bool            `json:"reachability"`
	Resolvability bool            `json:"resolvability"`
	CheckPorts    *bool           `json:"check_ports"` // defaults to true when ports are given
	Command       string          `json:"command"`
	HTTP          []httpPayload   `json:"http"`
	Timeouts      timeoutsPayload `json:"timeouts"`
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (p *evaluatePayload) checkSet() reach.CheckSet {
	checks := reach.CheckSet{
		Reachability:  p.Reachability,
		Resolvability: p.Resolvability,
		Ports:         len(p.Ports) > 0,
		Command:       p.Command,
		Timeouts: reach.Timeouts{
			ICMP:    ms(p.Timeouts.ICMP),
			TCP:     ms(p.Timeouts.TCP),
			DNS:     ms(p.Timeouts.DNS),
			Command: ms(p.Timeouts.Command),
		},
	}
	if p.CheckPorts != nil {
		checks.Ports = *p.CheckPorts
	}
	for _, h := range p.HTTP {
		checks.HTTP = append(checks.HTTP, reach.HTTPCheck{
			URL:            h.URL,
			ConnectTimeout: ms(h.ConnectTimeoutMS),
			MaxTime:        ms(h.MaxTimeMS),
		})
	}
	return checks
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var p evaluatePayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	target, err := reach.NewTarget(p.Address, p.Ports...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	checks := p.checkSet()
	if checks.Empty() {
		checks = reach.All()
	}
	urls := make(map[string]bool, len(checks.HTTP))
	for _, h := range checks.HTTP {
		if urls[h.URL] {
			http.Error(w, h.URL+": listed twice", http.StatusBadRequest)
			return
		}
		urls[h.URL] = true
	}
	if !s.AllowCommands && (checks.Command != "" || len(checks.HTTP) > 0) {
		http.Error(w, rules.ErrCommandsDisabled.Error(), http.StatusForbidden)
		return
	}
	checks.Timeouts = checks.Timeouts.Or(s.Timeouts)

	res := s.Evaluator.Evaluate(r.Context(), target, checks)

	s.Logger.Info("evaluate",
		zap.String("address", target.Address()),
		zap.Stringer("reachable", res.Reachable),
		zap.Duration("duration", res.Duration),
		zap.Int("errors", len(res.Errors)),
	)

	writeJSON(w, newResult(&res, checks))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	f, err := rules.Parse(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	eval := s.Evaluator
	if policy := f.Policy(); f.LiteralPolicy != "" && policy != s.Literals {
		if s.WithLiterals == nil {
			http.Error(w, fmt.Sprintf("literal_policy %s not supported, server uses %s", policy, s.Literals), http.StatusBadRequest)
			return
		}
		eval = s.WithLiterals(policy)
	}

	runner := rules.Runner{
		Evaluator:     eval,
		Concurrency:   s.Concurrency,
		Timeouts:      f.Timeouts.Timeouts().Or(s.Timeouts),
		AllowCommands: s.AllowCommands,
	}
	report := runner.Run(r.Context(), f.Select(r.URL.Query()["rule"]...))

	passed, failed, errored := report.Counts()
	s.Logger.Info("rules",
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("errored", errored),
		zap.Duration("duration", report.Duration),
	)
	if err := report.Err(); err != nil {
		s.Logger.Warn("rules_errors", zap.Error(err))
	}

	writeJSON(w, newReport(report))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Monitor == nil {
		http.Error(w, errNoMonitor.Error(), http.StatusNotFound)
		return
	}

	metrics := s.Monitor.Export()
	key := chi.URLParam(r, "key")
	if key == "" {
		writeJSON(w, metrics)
		return
	}

	m, found := metrics[key]
	if !found {
		http.Error(w, "unknown target", http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type portResult struct {
	Reachable bool    `json:"reachable"`
	RTTMillis float64 `json:"rtt_ms,omitempty"`
}

type commandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type httpResult struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
}

type result struct {
	Address    string                `json:"address"`
	Reachable  *reach.Reachability   `json:"reachable,omitempty"`
	RTTMillis  float64               `json:"rtt_ms,omitempty"`
	Resolvable *bool                 `json:"resolvable,omitempty"`
	Addresses  []string              `json:"addresses,omitempty"`
	Ports      map[uint16]portResult `json:"ports,omitempty"`
	Command    *commandResult        `json:"command,omitempty"`
	HTTP       []httpResult          `json:"http,omitempty"`
	Errors     []string              `json:"errors,omitempty"`
	CheckedAt  time.Time             `json:"checked_at"`
	DurationMS float64               `json:"duration_ms"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// newResult converts res; fields of checks which did not run are omitted.
func newResult(res *reach.ProbeResult, checks reach.CheckSet) result {
	out := result{
		Address:    res.Target.Address(),
		CheckedAt:  res.CheckedAt.UTC(),
		DurationMS: millis(res.Duration),
	}

	if checks.Reachability {
		reachable := res.Reachable
		out.Reachable = &reachable
		out.RTTMillis = millis(res.RTT)
	}
	if checks.Resolvability {
		resolvable := res.Resolvable
		out.Resolvable = &resolvable
		for _, ip := range res.Addresses {
			out.Addresses = append(out.Addresses, ip.String())
		}
	}
	if len(res.Ports) > 0 {
		out.Ports = make(map[uint16]portResult, len(res.Ports))
		for port, pr := range res.Ports {
			out.Ports[port] = portResult{Reachable: pr.Reachable, RTTMillis: millis(pr.RTT)}
		}
	}
	if c := res.Command; c != nil {
		out.Command = &commandResult{
			ExitCode: c.ExitCode,
			Stdout:   c.Stdout,
			Stderr:   c.Stderr,
			TimedOut: c.TimedOut,
		}
	}
	for _, h := range checks.HTTP {
		st := res.HTTP[h.URL]
		out.HTTP = append(out.HTTP, httpResult{
			URL:       h.URL,
			Connected: st.Connected,
			Code:      st.Code,
			Reason:    st.Reason,
		})
	}
	for _, err := range res.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

type outcome struct {
	Rule     string          `json:"rule"`
	Passed   bool            `json:"passed"`
	Failures []rules.Failure `json:"failures,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Result   *result         `json:"result,omitempty"`
}

type report struct {
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Errored    int       `json:"errored"`
	ExitCode   int       `json:"exit_code"`
	DurationMS float64   `json:"duration_ms"`
	Outcomes   []outcome `json:"outcomes"`
}

func newReport(r *rules.Report) report {
	out := report{
		ExitCode:   r.ExitCode(),
		DurationMS: millis(r.Duration),
		Outcomes:   make([]outcome, 0, len(r.Outcomes)),
	}
	out.Passed, out.Failed, out.Errored = r.Counts()

	for i := range r.Outcomes {
		o := &r.Outcomes[i]
		oc := outcome{
			Rule:     o.Rule.Title(),
			Passed:   o.Passed(),
			Failures: o.Failures,
		}
		for _, err := range multierr.Errors(o.Err) {
			oc.Errors = append(oc.Errors, err.Error())
		}
		if !o.Result.CheckedAt.IsZero() {
			res := newResult(&o.Result, o.Rule.CheckSet())
			oc.Result = &res
		}
		out.Outcomes = append(out.Outcomes, oc)
	}
	return out
}
