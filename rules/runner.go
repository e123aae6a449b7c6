package rules

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	reach "github.com/digineo/go-reach"
)

// ErrCommandsDisabled is reported for rules with commands when the Runner
// does not allow them.
var ErrCommandsDisabled = errors.New("command checks are disabled")

// Outcome is the result of one rule.
type Outcome struct {
	Rule     Rule
	Result   reach.ProbeResult
	Failures []Failure
	Err      error // invalid rule or infrastructure errors
}

// Passed reports whether all expectations held and every check ran.
func (o *Outcome) Passed() bool {
	return o.Err == nil && len(o.Failures) == 0
}

// Runner evaluates rules concurrently.
type Runner struct {
	Evaluator reach.Evaluator

	// Concurrency limits the rules evaluated at once, defaults to
	// runtime.NumCPU(). Each rule probes its checks in parallel.
	Concurrency int

	// Timeouts apply to rules without their own.
	Timeouts reach.Timeouts

	// AllowCommands enables command and HTTP checks.
	AllowCommands bool

	// Progress, if set, is called after each rule. Calls are serialized.
	Progress func(Outcome)
}

// Run evaluates rules and returns a report in rule order.
func (r *Runner) Run(ctx context.Context, rules []Rule) *Report {
	report := &Report{
		Outcomes: make([]Outcome, len(rules)),
		Started:  time.Now(),
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	sem := make(chan struct{}, limit)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	canceled := func(from int) {
		for j := from; j < len(rules); j++ {
			report.Outcomes[j] = Outcome{Rule: rules[j], Err: ctx.Err()}
		}
	}

loop:
	for i := range rules {
		if ctx.Err() != nil {
			canceled(i)
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			canceled(i)
			break loop
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			out := r.evaluate(ctx, &rules[i])
			report.Outcomes[i] = out

			if r.Progress != nil {
				mu.Lock()
				r.Progress(out)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	report.Duration = time.Since(report.Started)
	return report
}

func (r *Runner) evaluate(ctx context.Context, rule *Rule) Outcome {
	out := Outcome{Rule: *rule}

	if err := rule.Validate(); err != nil {
		out.Err = err
		return out
	}
	if !r.AllowCommands && (rule.Command != nil || len(rule.HTTP) > 0) {
		out.Err = ErrCommandsDisabled
		return out
	}

	target, err := rule.Target()
	if err != nil {
		out.Err = err
		return out
	}

	checks := rule.CheckSet()
	checks.Timeouts = checks.Timeouts.Or(r.Timeouts)

	out.Result = r.Evaluator.Evaluate(ctx, target, checks)
	out.Failures = Assert(rule, &out.Result)
	out.Err = out.Result.Err()
	return out
}
