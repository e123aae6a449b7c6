package monitor

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Outcome classifies a single check.
type Outcome uint8

const (
	Up     Outcome = iota // positive result
	Down                  // negative result
	Failed                // the check could not run
)

// Sample stores a single check outcome and, if Up, its round-trip time.
type Sample struct {
	RTT     time.Duration
	Outcome Outcome
}

// History is a ring buffer of the most recent samples of one check.
type History struct {
	samples  []Sample
	count    int
	position int
	sync.RWMutex
}

// NewHistory creates a History keeping up to capacity samples.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		samples: make([]Sample, capacity),
	}
}

// Add saves a sample, overwriting the oldest one when full.
func (h *History) Add(rtt time.Duration, outcome Outcome) {
	h.Lock()

	h.samples[h.position] = Sample{RTT: rtt, Outcome: outcome}
	h.position = (h.position + 1) % len(h.samples)

	if h.count < len(h.samples) {
		h.count++
	}

	h.Unlock()
}

func (h *History) clear() {
	h.count = 0
	h.position = 0
}

// ComputeAndClear aggregates the history into a single data point and
// clears it.
func (h *History) ComputeAndClear() *Metrics {
	h.Lock()
	result := h.compute()
	h.clear()
	h.Unlock()

	return result
}

// Compute aggregates the history into a single data point. It returns
// nil for an empty history.
func (h *History) Compute() *Metrics {
	h.RLock()
	defer h.RUnlock()

	return h.compute()
}

func (h *History) compute() *Metrics {
	if h.count == 0 {
		return nil
	}

	m := Metrics{Checks: h.count}
	data := make([]float64, 0, h.count)
	var total float64

	for i := 0; i < h.count; i++ {
		s := &h.samples[i]
		switch s.Outcome {
		case Down:
			m.Down++
			continue
		case Failed:
			m.Failed++
			continue
		}

		if len(data) == 0 || s.RTT < m.Best {
			m.Best = s.RTT
		}
		if len(data) == 0 || s.RTT > m.Worst {
			m.Worst = s.RTT
		}
		data = append(data, float64(s.RTT))
		total += float64(s.RTT)
	}

	if decided := h.count - m.Failed; decided > 0 {
		m.Availability = float64(len(data)) / float64(decided)
	}

	size := len(data)
	if size == 0 {
		return &m
	}

	mean := total / float64(size)
	var sumSquares float64
	for _, rtt := range data {
		sumSquares += math.Pow(rtt-mean, 2)
	}
	m.Mean = time.Duration(mean)
	m.StdDev = time.Duration(math.Sqrt(sumSquares / float64(size)))

	sort.Float64s(data)
	if size%2 == 0 {
		m.Median = time.Duration((data[size/2-1] + data[size/2]) / 2)
	} else {
		m.Median = time.Duration(data[size/2])
	}

	return &m
}
