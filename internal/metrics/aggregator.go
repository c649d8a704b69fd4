package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/mbaxter/stampede/internal/behavior"
)

// Aggregator records request outcomes per statistics category in a
// thread-safe manner. One instance is shared by every virtual user in a run;
// per-category entries carry their own locks so writers for different
// categories do not contend.
type Aggregator struct {
	mu      sync.RWMutex
	entries map[string]*entry
	total   *entry
	start   time.Time
}

type entry struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	count      int64
	failures   int64
	expected   int64
	cancelled  int64
	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration
	reasons    map[string]int64
}

func newEntry() *entry {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &entry{
		hist:    hdrhistogram.New(1, 60_000_000, 3),
		reasons: make(map[string]int64),
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		entries: make(map[string]*entry),
		total:   newEntry(),
		start:   time.Now(),
	}
}

// Start marks the actual run start time so throughput reflects elapsed wall
// time since ramping began rather than aggregator construction.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.start = time.Now()
	a.mu.Unlock()
}

// Reset clears all recorded state. A new run must start from zero.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.entries = make(map[string]*entry)
	a.total = newEntry()
	a.start = time.Now()
	a.mu.Unlock()
}

// Record appends one outcome to its category's entry and to the run total.
// Every produced outcome must be recorded exactly once; cancelled outcomes
// count toward totals but never toward failures, and their partial latency is
// not folded into the distribution.
func (a *Aggregator) Record(o behavior.Outcome, verdict behavior.Verdict, reason string) {
	e := a.entryFor(o.Category)
	e.record(o, verdict, reason)
	a.mu.RLock()
	total := a.total
	a.mu.RUnlock()
	total.record(o, verdict, reason)
}

func (a *Aggregator) entryFor(category string) *entry {
	a.mu.RLock()
	e, ok := a.entries[category]
	a.mu.RUnlock()
	if ok {
		return e
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok = a.entries[category]; ok {
		return e
	}
	e = newEntry()
	a.entries[category] = e
	return e
}

func (e *entry) record(o behavior.Outcome, verdict behavior.Verdict, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.count++
	if o.Cancelled {
		e.cancelled++
		return
	}

	if o.Latency > 0 {
		us := o.Latency.Microseconds()
		if us < e.hist.LowestTrackableValue() {
			us = e.hist.LowestTrackableValue()
		}
		if us > e.hist.HighestTrackableValue() {
			us = e.hist.HighestTrackableValue()
		}
		_ = e.hist.RecordValue(us)
	}
	e.sumLatency += o.Latency
	if e.minLatency == 0 || o.Latency < e.minLatency {
		e.minLatency = o.Latency
	}
	if o.Latency > e.maxLatency {
		e.maxLatency = o.Latency
	}

	switch verdict {
	case behavior.VerdictFailure:
		e.failures++
		if reason != "" {
			e.reasons[reason]++
		}
	case behavior.VerdictExpectedFailure:
		e.expected++
	}
}

// Rollup is the point-in-time aggregate for one category (or the run total).
type Rollup struct {
	Count            int64            `json:"count"`
	Failures         int64            `json:"failures"`
	ExpectedFailures int64            `json:"expected_failures,omitempty"`
	Cancelled        int64            `json:"cancelled,omitempty"`
	FailureRate      float64          `json:"failure_rate"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	MinLatencyMs     float64          `json:"min_latency_ms"`
	MaxLatencyMs     float64          `json:"max_latency_ms"`
	P50LatencyMs     float64          `json:"p50_latency_ms"`
	P90LatencyMs     float64          `json:"p90_latency_ms"`
	P95LatencyMs     float64          `json:"p95_latency_ms"`
	P99LatencyMs     float64          `json:"p99_latency_ms"`
	PerSec           float64          `json:"per_sec"`
	Reasons          map[string]int64 `json:"reasons,omitempty"`
}

// Snapshot is a consistent copy of all rollups at one instant.
type Snapshot struct {
	StartedAt  time.Time         `json:"started_at"`
	Elapsed    time.Duration     `json:"-"`
	ElapsedMs  float64           `json:"elapsed_ms"`
	Total      Rollup            `json:"total"`
	Categories map[string]Rollup `json:"categories"`
}

// Snapshot copies current state without blocking writers beyond the copy
// itself. Pass elapsed <= 0 to measure from the recorded start time.
func (a *Aggregator) Snapshot(elapsed time.Duration) Snapshot {
	a.mu.RLock()
	start := a.start
	total := a.total
	names := make([]string, 0, len(a.entries))
	entries := make([]*entry, 0, len(a.entries))
	for name, e := range a.entries {
		names = append(names, name)
		entries = append(entries, e)
	}
	a.mu.RUnlock()

	if elapsed <= 0 {
		elapsed = time.Since(start)
	}

	snap := Snapshot{
		StartedAt:  start,
		Elapsed:    elapsed,
		ElapsedMs:  float64(elapsed) / float64(time.Millisecond),
		Total:      total.rollup(elapsed),
		Categories: make(map[string]Rollup, len(entries)),
	}
	for i, e := range entries {
		snap.Categories[names[i]] = e.rollup(elapsed)
	}
	return snap
}

func (e *entry) rollup(elapsed time.Duration) Rollup {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := Rollup{
		Count:            e.count,
		Failures:         e.failures,
		ExpectedFailures: e.expected,
		Cancelled:        e.cancelled,
		MinLatencyMs:     float64(e.minLatency) / float64(time.Millisecond),
		MaxLatencyMs:     float64(e.maxLatency) / float64(time.Millisecond),
	}

	completed := e.count - e.cancelled
	if completed > 0 {
		r.FailureRate = float64(e.failures) / float64(completed)
		r.AvgLatencyMs = float64(e.sumLatency) / float64(completed) / float64(time.Millisecond)
	}
	if e.hist.TotalCount() > 0 {
		r.P50LatencyMs = float64(e.hist.ValueAtQuantile(50)) / 1000
		r.P90LatencyMs = float64(e.hist.ValueAtQuantile(90)) / 1000
		r.P95LatencyMs = float64(e.hist.ValueAtQuantile(95)) / 1000
		r.P99LatencyMs = float64(e.hist.ValueAtQuantile(99)) / 1000
	}
	if elapsed > 0 && e.count > 0 {
		r.PerSec = float64(e.count) / elapsed.Seconds()
	}
	if len(e.reasons) > 0 {
		r.Reasons = make(map[string]int64, len(e.reasons))
		for k, v := range e.reasons {
			r.Reasons[k] = v
		}
	}
	return r
}
