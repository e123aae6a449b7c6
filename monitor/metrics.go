package monitor

import "time"

// Metrics is a data point computed from a History.
type Metrics struct {
	Checks       int           `json:"checks"`       // number of samples
	Down         int           `json:"down"`         // negative results
	Failed       int           `json:"failed"`       // checks that could not run
	Availability float64       `json:"availability"` // up / (up + down)
	Best         time.Duration `json:"best"`         // best rtt
	Worst        time.Duration `json:"worst"`        // worst rtt
	Median       time.Duration `json:"median"`       // median rtt
	Mean         time.Duration `json:"mean"`         // mean rtt
	StdDev       time.Duration `json:"stddev"`       // std deviation
}

// TargetMetrics groups the metrics of all checks of a target. Checks
// which are not monitored are omitted.
type TargetMetrics struct {
	Reachability  *Metrics            `json:"reachability,omitempty"`
	Resolvability *Metrics            `json:"resolvability,omitempty"`
	Ports         map[uint16]*Metrics `json:"ports,omitempty"`
	HTTP          map[string]*Metrics `json:"http,omitempty"`    // keyed by URL, up = response arrived
	Command       *Metrics            `json:"command,omitempty"` // up = exit status 0
}
