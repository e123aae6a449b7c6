// Package rules expresses reachability assertions as data. A rules file
// lists targets together with the expected outcome of each check; a
// Runner evaluates them with a reach.Evaluator and reports mismatches.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	reach "github.com/digineo/go-reach"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// File is the top level of a rules file.
type File struct {
	LiteralPolicy string   `yaml:"literal_policy,omitempty"`
	Timeouts      Timeouts `yaml:"timeouts,omitempty"`
	Rules         []Rule   `yaml:"rules"`
}

// Timeouts mirrors reach.Timeouts with YAML durations ("1s", "500ms").
type Timeouts struct {
	ICMP    time.Duration `yaml:"icmp,omitempty"`
	TCP     time.Duration `yaml:"tcp,omitempty"`
	DNS     time.Duration `yaml:"dns,omitempty"`
	Command time.Duration `yaml:"command,omitempty"`
}

// Timeouts converts t, zero fields stay zero.
func (t Timeouts) Timeouts() reach.Timeouts {
	return reach.Timeouts{ICMP: t.ICMP, TCP: t.TCP, DNS: t.DNS, Command: t.Command}
}

// Rule describes one target and what is expected of it. Expectations
// which are nil or empty are not checked.
type Rule struct {
	Name        string `yaml:"name"`
	Group       string `yaml:"group,omitempty"`
	Description string `yaml:"description,omitempty"`
	Address     string `yaml:"address"`

	Reachable  *bool               `yaml:"reachable,omitempty"`
	Resolvable *bool               `yaml:"resolvable,omitempty"`
	Ports      Ports               `yaml:"ports,omitempty"`
	HTTP       []HTTPExpectation   `yaml:"http,omitempty"`
	Command    *CommandExpectation `yaml:"command,omitempty"`

	Timeouts Timeouts `yaml:"timeouts,omitempty"`
}

// Ports lists the ports expected to accept or refuse connections.
type Ports struct {
	Open   []uint16 `yaml:"open,omitempty"`
	Closed []uint16 `yaml:"closed,omitempty"`
}

// Empty reports whether no port is listed.
func (p Ports) Empty() bool {
	return len(p.Open) == 0 && len(p.Closed) == 0
}

// HTTPExpectation checks the status code of a URL. Status and NotStatus
// are compared verbatim with curl's output; Connected checks whether a
// response arrived at all.
type HTTPExpectation struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	MaxTime        time.Duration `yaml:"max_time,omitempty"`

	Status    string `yaml:"status,omitempty"`
	NotStatus string `yaml:"not_status,omitempty"`
	Connected *bool  `yaml:"connected,omitempty"`
}

// Check returns the probe for e.
func (e HTTPExpectation) Check() reach.HTTPCheck {
	return reach.HTTPCheck{URL: e.URL, ConnectTimeout: e.ConnectTimeout, MaxTime: e.MaxTime}
}

// CommandExpectation runs a shell command and compares its outcome.
type CommandExpectation struct {
	Run      string  `yaml:"run"`
	Stdout   *string `yaml:"stdout,omitempty"`
	ExitCode *int    `yaml:"exit_code,omitempty"`
}

// Title is the name used in reports.
func (r *Rule) Title() string {
	if r.Group != "" {
		return r.Group + "/" + r.Name
	}
	return r.Name
}

// Target builds the probe target of r.
func (r *Rule) Target() (reach.Target, error) {
	ports := make([]uint16, 0, len(r.Ports.Open)+len(r.Ports.Closed))
	ports = append(ports, r.Ports.Open...)
	ports = append(ports, r.Ports.Closed...)
	return reach.NewTarget(r.Address, ports...)
}

// CheckSet selects exactly the checks r has expectations for.
func (r *Rule) CheckSet() reach.CheckSet {
	checks := reach.CheckSet{
		Reachability:  r.Reachable != nil,
		Resolvability: r.Resolvable != nil,
		Ports:         !r.Ports.Empty(),
		Timeouts:      r.Timeouts.Timeouts(),
	}
	for _, h := range r.HTTP {
		checks.HTTP = append(checks.HTTP, h.Check())
	}
	if r.Command != nil {
		checks.Command = r.Command.Run
	}
	return checks
}

var errNoExpectation = errors.New("no expectation")

// Validate checks r for obvious mistakes.
func (r *Rule) Validate() error {
	var err error
	if strings.TrimSpace(r.Name) == "" {
		err = multierr.Append(err, errors.New("missing name"))
	}
	if _, terr := r.Target(); terr != nil {
		err = multierr.Append(err, terr)
	}

	for _, open := range r.Ports.Open {
		for _, closed := range r.Ports.Closed {
			if open == closed {
				err = multierr.Append(err, fmt.Errorf("port %d listed as open and closed", open))
			}
		}
	}
	urls := make(map[string]bool, len(r.HTTP))
	for _, h := range r.HTTP {
		if strings.TrimSpace(h.URL) == "" {
			err = multierr.Append(err, errors.New("http check without url"))
		} else if urls[h.URL] {
			err = multierr.Append(err, fmt.Errorf("%s: listed twice", h.URL))
		}
		urls[h.URL] = true
		if h.Status != "" && h.Status == h.NotStatus {
			err = multierr.Append(err, fmt.Errorf("%s: status and not_status are equal", h.URL))
		}
	}
	if r.Command != nil && strings.TrimSpace(r.Command.Run) == "" {
		err = multierr.Append(err, errors.New("command without run"))
	}

	if err == nil && r.CheckSet().Empty() {
		err = errNoExpectation
	}
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Title(), err)
	}
	return nil
}

// Parse decodes a rules file. JSON is accepted as well. Unknown keys are
// rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty rules file")
		}
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a rules file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks all rules and the global settings.
func (f *File) Validate() error {
	var err error
	if _, perr := reach.ParseLiteralPolicy(f.LiteralPolicy); perr != nil {
		err = multierr.Append(err, perr)
	}
	if len(f.Rules) == 0 {
		err = multierr.Append(err, errors.New("no rules"))
	}

	seen := make(map[string]bool, len(f.Rules))
	for i := range f.Rules {
		r := &f.Rules[i]
		err = multierr.Append(err, r.Validate())

		if title := r.Title(); seen[title] {
			err = multierr.Append(err, fmt.Errorf("duplicate rule %q", title))
		} else {
			seen[title] = true
		}
	}
	return err
}

// Policy returns the literal policy of f.
func (f *File) Policy() reach.LiteralPolicy {
	p, _ := reach.ParseLiteralPolicy(f.LiteralPolicy)
	return p
}

// Select returns the rules whose title or group equals one of names, in
// file order. No names select everything.
func (f *File) Select(names ...string) []Rule {
	if len(names) == 0 {
		return f.Rules
	}

	var selected []Rule
	for _, r := range f.Rules {
		for _, name := range names {
			if name == r.Title() || name == r.Group || name == r.Name {
				selected = append(selected, r)
				break
			}
		}
	}
	return selected
}
