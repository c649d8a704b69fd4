package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mbaxter/stampede/internal/metrics"
)

// UserCounter reports how many virtual users are currently running.
type UserCounter func() int

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	aggregator *metrics.Aggregator
	users      UserCounter
	ticker     *time.Ticker
	done       chan struct{}
	finished   chan struct{}
	writer     io.Writer
	active     int32
	start      time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. users may be nil when no live user count is available.
func NewProgressReporter(aggregator *metrics.Aggregator, users UserCounter, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		aggregator: aggregator,
		users:      users,
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
		writer:     writer,
		start:      time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			snap := p.aggregator.Snapshot(time.Since(p.start))
			total := snap.Total
			line := fmt.Sprintf("\rRequests: %d | Failures: %d | RPS: %.1f | P95: %.1fms",
				total.Count, total.Failures, total.PerSec, total.P95LatencyMs)
			if p.users != nil {
				line += fmt.Sprintf(" | Users: %d", p.users())
			}
			if rows := metrics.SortedRows(snap.Categories); len(rows) > 0 && total.Count > 0 {
				top := rows[0]
				share := (float64(top.Rollup.Count) / float64(total.Count)) * 100
				line += fmt.Sprintf(" | Top Task: %s (%.0f%%, P99 %.1fms)", top.Name, share, top.Rollup.P99LatencyMs)
			}
			fmt.Fprint(p.writer, line)
		case <-p.done:
			return
		}
	}
}
