package monitor

import (
	"github.com/digineo/go-reach/rules"
)

// AddRules monitors the checks of every rule in f, keyed by the rule
// title. Command and HTTP checks are dropped unless allowCommands is set;
// rules left without checks are skipped. It returns the added rules.
//
// Timeouts of single rules are kept. The file-wide timeouts and literal
// policy belong to the evaluator and are not applied here.
func (m *Monitor) AddRules(f *rules.File, allowCommands bool) ([]rules.Rule, error) {
	var added []rules.Rule
	for i := range f.Rules {
		r := &f.Rules[i]
		target, err := r.Target()
		if err != nil {
			return added, err
		}

		checks := r.CheckSet()
		if !allowCommands {
			checks.Command = ""
			checks.HTTP = nil
		}
		if checks.Empty() {
			continue
		}

		m.AddTarget(r.Title(), target, checks)
		added = append(added, *r)
	}
	return added, nil
}
