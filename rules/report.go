package rules

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Exit codes of a finished run.
const (
	ExitPassed = 0
	ExitFailed = 1 // at least one expectation did not hold
	ExitError  = 2 // at least one check could not run
)

// Report collects the outcomes of a run.
type Report struct {
	Outcomes []Outcome
	Started  time.Time
	Duration time.Duration
}

// Counts returns the number of passed, failed and errored rules. A rule
// with errors counts as errored even if some expectations failed.
func (r *Report) Counts() (passed, failed, errored int) {
	for i := range r.Outcomes {
		o := &r.Outcomes[i]
		switch {
		case o.Err != nil:
			errored++
		case len(o.Failures) > 0:
			failed++
		default:
			passed++
		}
	}
	return
}

// Err combines the errors of all rules.
func (r *Report) Err() error {
	var err error
	for i := range r.Outcomes {
		if o := &r.Outcomes[i]; o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", o.Rule.Title(), o.Err))
		}
	}
	return err
}

// ExitCode maps the report to a process exit status.
func (r *Report) ExitCode() int {
	_, failed, errored := r.Counts()
	switch {
	case errored > 0:
		return ExitError
	case failed > 0:
		return ExitFailed
	}
	return ExitPassed
}

// WriteText writes a human readable summary. With verbose, passed rules
// are listed as well.
func (r *Report) WriteText(w io.Writer, verbose bool) error {
	var b strings.Builder

	for i := range r.Outcomes {
		o := &r.Outcomes[i]
		switch {
		case o.Err != nil:
			fmt.Fprintf(&b, "ERROR %s\n", o.Rule.Title())
			for _, err := range multierr.Errors(o.Err) {
				fmt.Fprintf(&b, "      %v\n", err)
			}
		case len(o.Failures) > 0:
			fmt.Fprintf(&b, "FAIL  %s\n", o.Rule.Title())
		case verbose:
			fmt.Fprintf(&b, "ok    %s (%v)\n", o.Rule.Title(), o.Result.Duration.Round(time.Millisecond))
		}
		for _, f := range o.Failures {
			fmt.Fprintf(&b, "      %s\n", f)
		}
	}

	passed, failed, errored := r.Counts()
	fmt.Fprintf(&b, "%d passed, %d failed, %d errors in %v\n",
		passed, failed, errored, r.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}
