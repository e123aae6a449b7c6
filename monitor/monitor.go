package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal"
)

var log = internal.Logger

// Monitor periodically evaluates a set of targets and keeps a history of
// the outcomes per check.
type Monitor struct {
	HistorySize int // Number of results per check to keep

	// OnResult, if set, is called after every evaluation. It must not
	// block for long.
	OnResult func(key string, res reach.ProbeResult)

	evaluator reach.Evaluator
	interval  time.Duration

	targets map[string]*target // mapping from external key
	mtx     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	start  sync.Once
}

const defaultHistorySize = 10

// New creates a Monitor evaluating every target once per interval. You
// need to call AddTarget()/RemoveTarget() to manage monitored targets.
func New(evaluator reach.Evaluator, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		HistorySize: defaultHistorySize,
		evaluator:   evaluator,
		interval:    interval,
		targets:     make(map[string]*target),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins monitoring in the background. Subsequent calls are no-ops.
func (m *Monitor) Start() {
	m.start.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// Stop brings the monitoring gracefully to a halt. Running evaluations
// are canceled and waited for.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probeTargets()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeTargets()
		}
	}
}

// probeTargets spreads the evaluations evenly over one interval.
func (m *Monitor) probeTargets() {
	keys := m.Keys()
	if len(keys) == 0 {
		return
	}

	sleep := m.interval / time.Duration(len(keys))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for _, key := range keys {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			timer.Reset(sleep)
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.probeTarget(key)
		}()
	}
}

func (m *Monitor) probeTarget(key string) {
	m.mtx.RLock()
	t, found := m.targets[key]
	m.mtx.RUnlock()

	if !found {
		// removed in the meanwhile
		return
	}

	// skip while the previous evaluation is still running
	t.Lock()
	if t.running {
		t.Unlock()
		return
	}
	t.running = true
	t.Unlock()

	res := m.evaluator.Evaluate(m.ctx, t.target, t.checks)

	t.Lock()
	t.running = false
	t.Unlock()

	if m.ctx.Err() != nil {
		// canceled results carry no information
		return
	}

	t.record(res)
	if m.OnResult != nil {
		m.OnResult(key, res)
	}
}

// AddTarget adds a target to the monitored list. If a target with the
// given key already exists, it is replaced and its history discarded.
func (m *Monitor) AddTarget(key string, t reach.Target, checks reach.CheckSet) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, found := m.targets[key]; found {
		log.Infof("replacing monitor target %q", key)
	}
	m.targets[key] = newTarget(t, checks, m.HistorySize)
}

// RemoveTarget removes a target from the monitoring list.
func (m *Monitor) RemoveTarget(key string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	delete(m.targets, key)
}

// Keys returns the keys of all targets in sorted order.
func (m *Monitor) Keys() []string {
	m.mtx.RLock()
	keys := make([]string, 0, len(m.targets))
	for key := range m.targets {
		keys = append(keys, key)
	}
	m.mtx.RUnlock()

	sort.Strings(keys)
	return keys
}

// Last returns the most recent result of a target.
func (m *Monitor) Last(key string) (reach.ProbeResult, bool) {
	m.mtx.RLock()
	t, found := m.targets[key]
	m.mtx.RUnlock()

	if !found {
		return reach.ProbeResult{}, false
	}

	t.Lock()
	defer t.Unlock()
	return t.last, !t.last.CheckedAt.IsZero()
}

// Export calculates the metrics for each monitored target and returns it
// as a simple map. Targets without results are omitted.
func (m *Monitor) Export() map[string]*TargetMetrics {
	return m.export(false)
}

// ExportAndClear is like Export, but clears the histories afterwards.
func (m *Monitor) ExportAndClear() map[string]*TargetMetrics {
	return m.export(true)
}

func (m *Monitor) export(clear bool) map[string]*TargetMetrics {
	result := make(map[string]*TargetMetrics)

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	for key, t := range m.targets {
		if metrics := t.metrics(clear); metrics != nil {
			result[key] = metrics
		}
	}

	return result
}
