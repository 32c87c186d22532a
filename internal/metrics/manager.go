// Package metrics provides an in-process metrics tree for personabot.
// Counters, outcomes and timings are grouped by topic and operation and
// can be snapshotted as JSON for the web status server. Dot-import the
// package to use the Metric* helpers in export.go.
package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Counter tracks a monotonically increasing count.
type Counter struct {
	Count int64 `json:"count"`
}

// Gauge tracks a point-in-time value.
type Gauge struct {
	Value int64 `json:"value"`
}

// Timing tracks call durations for one operation.
type Timing struct {
	Count  int64         `json:"count"`
	Total  time.Duration `json:"total_ns"`
	Min    time.Duration `json:"min_ns"`
	Max    time.Duration `json:"max_ns"`
	LastAt time.Time     `json:"last_at"`
}

// Average returns the mean duration across recorded calls.
func (t *Timing) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// OutcomeSet tracks named outcomes (delivered/failed/...) for one operation.
type OutcomeSet struct {
	Outcomes map[string]int64 `json:"outcomes"`
}

// Topic groups metrics for one component ("orchestrator", "llm", ...).
type Topic struct {
	Counters map[string]*Counter    `json:"counters,omitempty"`
	Gauges   map[string]*Gauge      `json:"gauges,omitempty"`
	Timings  map[string]*Timing     `json:"timings,omitempty"`
	Outcomes map[string]*OutcomeSet `json:"outcomes,omitempty"`
}

// Manager owns the metrics tree. All methods are safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	topics    map[string]*Topic
	inflight  map[string]inflightTimer
	nextTimer uint64
	startedAt time.Time
}

type inflightTimer struct {
	topic     string
	operation string
	start     time.Time
}

var (
	instance     *Manager
	instanceOnce sync.Once
)

// GetInstance returns the global metrics manager.
func GetInstance() *Manager {
	instanceOnce.Do(func() {
		instance = &Manager{
			topics:    make(map[string]*Topic),
			inflight:  make(map[string]inflightTimer),
			startedAt: time.Now(),
		}
	})
	return instance
}

func (m *Manager) topic(name string) *Topic {
	t, ok := m.topics[name]
	if !ok {
		t = &Topic{}
		m.topics[name] = t
	}
	return t
}

// IncrementCounter adds one to topic/operation.
func (m *Manager) IncrementCounter(topic, operation string) {
	m.AddCounter(topic, operation, 1)
}

// AddCounter adds delta to topic/operation.
func (m *Manager) AddCounter(topic, operation string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.topic(topic)
	if t.Counters == nil {
		t.Counters = make(map[string]*Counter)
	}
	c, ok := t.Counters[operation]
	if !ok {
		c = &Counter{}
		t.Counters[operation] = c
	}
	c.Count += delta
}

// SetGauge sets a gauge value for topic/operation.
func (m *Manager) SetGauge(topic, operation string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.topic(topic)
	if t.Gauges == nil {
		t.Gauges = make(map[string]*Gauge)
	}
	g, ok := t.Gauges[operation]
	if !ok {
		g = &Gauge{}
		t.Gauges[operation] = g
	}
	g.Value = value
}

// StartTiming begins timing an operation and returns a key for EndTiming.
func (m *Manager) StartTiming(topic, operation string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTimer++
	key := fmt.Sprintf("%s/%s#%d", topic, operation, m.nextTimer)
	m.inflight[key] = inflightTimer{topic: topic, operation: operation, start: time.Now()}
	return key
}

// EndTiming completes a timing started with StartTiming.
func (m *Manager) EndTiming(key string) {
	m.mu.Lock()
	timer, ok := m.inflight[key]
	if ok {
		delete(m.inflight, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.RecordDuration(timer.topic, timer.operation, time.Since(timer.start))
}

// RecordDuration records a duration directly.
func (m *Manager) RecordDuration(topic, operation string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.topic(topic)
	if t.Timings == nil {
		t.Timings = make(map[string]*Timing)
	}
	timing, ok := t.Timings[operation]
	if !ok {
		timing = &Timing{Min: d, Max: d}
		t.Timings[operation] = timing
	}
	timing.Count++
	timing.Total += d
	if d < timing.Min {
		timing.Min = d
	}
	if d > timing.Max {
		timing.Max = d
	}
	timing.LastAt = time.Now()
}

// RecordOutcome records a named outcome for topic/operation.
func (m *Manager) RecordOutcome(topic, operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.topic(topic)
	if t.Outcomes == nil {
		t.Outcomes = make(map[string]*OutcomeSet)
	}
	set, ok := t.Outcomes[operation]
	if !ok {
		set = &OutcomeSet{Outcomes: make(map[string]int64)}
		t.Outcomes[operation] = set
	}
	set.Outcomes[outcome]++
}

// RecordSuccess records a "success" outcome.
func (m *Manager) RecordSuccess(topic, operation string) {
	m.RecordOutcome(topic, operation, "success")
}

// RecordFailure records a "failure" outcome, with an optional reason counter.
func (m *Manager) RecordFailure(topic, operation, reason string) {
	m.RecordOutcome(topic, operation, "failure")
	if reason != "" {
		m.RecordOutcome(topic, operation, "failure:"+reason)
	}
}

// Snapshot is a point-in-time JSON-friendly view of the metrics tree.
type Snapshot struct {
	StartedAt time.Time         `json:"started_at"`
	Uptime    string            `json:"uptime"`
	Topics    map[string]*Topic `json:"topics"`
}

// GetSnapshot deep-copies the current tree.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := make(map[string]*Topic, len(m.topics))
	for name, t := range m.topics {
		ct := &Topic{}
		if t.Counters != nil {
			ct.Counters = make(map[string]*Counter, len(t.Counters))
			for k, v := range t.Counters {
				cv := *v
				ct.Counters[k] = &cv
			}
		}
		if t.Gauges != nil {
			ct.Gauges = make(map[string]*Gauge, len(t.Gauges))
			for k, v := range t.Gauges {
				cv := *v
				ct.Gauges[k] = &cv
			}
		}
		if t.Timings != nil {
			ct.Timings = make(map[string]*Timing, len(t.Timings))
			for k, v := range t.Timings {
				cv := *v
				ct.Timings[k] = &cv
			}
		}
		if t.Outcomes != nil {
			ct.Outcomes = make(map[string]*OutcomeSet, len(t.Outcomes))
			for k, v := range t.Outcomes {
				cs := &OutcomeSet{Outcomes: make(map[string]int64, len(v.Outcomes))}
				for ok2, oc := range v.Outcomes {
					cs.Outcomes[ok2] = oc
				}
				ct.Outcomes[k] = cs
			}
		}
		topics[name] = ct
	}

	return Snapshot{
		StartedAt: m.startedAt,
		Uptime:    time.Since(m.startedAt).Round(time.Second).String(),
		Topics:    topics,
	}
}
