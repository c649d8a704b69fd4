package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

func TestAggregatorConcurrentRecords(t *testing.T) {
	agg := NewAggregator()

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			category := "task_a"
			if w%2 == 1 {
				category = "task_b"
			}
			for i := 0; i < perWriter; i++ {
				agg.Record(behavior.Outcome{
					Category:   category,
					StatusCode: 200,
					Latency:    5 * time.Millisecond,
				}, behavior.VerdictSuccess, "")
			}
		}(w)
	}
	wg.Wait()

	snap := agg.Snapshot(time.Second)
	if got := snap.Total.Count; got != writers*perWriter {
		t.Fatalf("total count = %d, want %d", got, writers*perWriter)
	}
	if got := snap.Categories["task_a"].Count; got != writers/2*perWriter {
		t.Errorf("task_a count = %d, want %d", got, writers/2*perWriter)
	}
	if got := snap.Categories["task_b"].Count; got != writers/2*perWriter {
		t.Errorf("task_b count = %d, want %d", got, writers/2*perWriter)
	}
	if snap.Total.Failures != 0 {
		t.Errorf("failures = %d, want 0", snap.Total.Failures)
	}
}

func TestAggregatorVerdictAccounting(t *testing.T) {
	agg := NewAggregator()

	agg.Record(behavior.Outcome{Category: "t", StatusCode: 200, Latency: 10 * time.Millisecond}, behavior.VerdictSuccess, "")
	agg.Record(behavior.Outcome{Category: "t", StatusCode: 500, Latency: 20 * time.Millisecond}, behavior.VerdictFailure, "got status code 500")
	agg.Record(behavior.Outcome{Category: "t", StatusCode: 500, Latency: 20 * time.Millisecond}, behavior.VerdictFailure, "got status code 500")
	agg.Record(behavior.Outcome{Category: "t", StatusCode: 429, Latency: 5 * time.Millisecond}, behavior.VerdictExpectedFailure, "expected status 429")

	total := agg.Snapshot(time.Second).Total
	if total.Count != 4 {
		t.Errorf("count = %d, want 4", total.Count)
	}
	if total.Failures != 2 {
		t.Errorf("failures = %d, want 2", total.Failures)
	}
	if total.ExpectedFailures != 1 {
		t.Errorf("expected failures = %d, want 1", total.ExpectedFailures)
	}
	if want := 0.5; total.FailureRate != want {
		t.Errorf("failure rate = %v, want %v", total.FailureRate, want)
	}
	if total.Reasons["got status code 500"] != 2 {
		t.Errorf("reasons = %v, want 2 occurrences of status 500", total.Reasons)
	}
}

func TestAggregatorCancelledOutcome(t *testing.T) {
	agg := NewAggregator()

	agg.Record(behavior.Outcome{Category: "t", StatusCode: 200, Latency: 10 * time.Millisecond}, behavior.VerdictSuccess, "")
	// Cancelled outcomes count toward totals only; partial latency is dropped.
	agg.Record(behavior.Outcome{Category: "t", Cancelled: true, Latency: 3 * time.Millisecond}, behavior.VerdictSuccess, "")

	total := agg.Snapshot(time.Second).Total
	if total.Count != 2 {
		t.Errorf("count = %d, want 2", total.Count)
	}
	if total.Cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", total.Cancelled)
	}
	if total.Failures != 0 {
		t.Errorf("failures = %d, want 0", total.Failures)
	}
	// Only the completed request's latency is in the average.
	if want := 10.0; total.AvgLatencyMs != want {
		t.Errorf("avg latency = %v ms, want %v", total.AvgLatencyMs, want)
	}
}

func TestAggregatorPercentiles(t *testing.T) {
	agg := NewAggregator()
	for i := 1; i <= 100; i++ {
		agg.Record(behavior.Outcome{
			Category:   "t",
			StatusCode: 200,
			Latency:    time.Duration(i) * time.Millisecond,
		}, behavior.VerdictSuccess, "")
	}

	total := agg.Snapshot(time.Second).Total
	if total.P50LatencyMs < 45 || total.P50LatencyMs > 55 {
		t.Errorf("p50 = %v ms, want near 50", total.P50LatencyMs)
	}
	if total.P95LatencyMs < 90 || total.P95LatencyMs > 100 {
		t.Errorf("p95 = %v ms, want near 95", total.P95LatencyMs)
	}
	if total.P99LatencyMs < 94 || total.P99LatencyMs > 101 {
		t.Errorf("p99 = %v ms, want near 99", total.P99LatencyMs)
	}
	if total.MinLatencyMs != 1 {
		t.Errorf("min = %v ms, want 1", total.MinLatencyMs)
	}
	if total.MaxLatencyMs != 100 {
		t.Errorf("max = %v ms, want 100", total.MaxLatencyMs)
	}
}

func TestAggregatorReset(t *testing.T) {
	agg := NewAggregator()
	agg.Record(behavior.Outcome{Category: "t", StatusCode: 200}, behavior.VerdictSuccess, "")
	agg.Reset()

	snap := agg.Snapshot(time.Second)
	if snap.Total.Count != 0 {
		t.Errorf("count after reset = %d, want 0", snap.Total.Count)
	}
	if len(snap.Categories) != 0 {
		t.Errorf("categories after reset = %v, want empty", snap.Categories)
	}
}

func TestSnapshotZeroRun(t *testing.T) {
	agg := NewAggregator()
	snap := agg.Snapshot(0)
	if snap.Total.Count != 0 || snap.Total.Failures != 0 {
		t.Errorf("zero run total = %+v, want all zero", snap.Total)
	}
	if snap.Total.PerSec != 0 {
		t.Errorf("zero run rps = %v, want 0", snap.Total.PerSec)
	}
}

func TestSortedRows(t *testing.T) {
	rows := SortedRows(map[string]Rollup{
		"b": {Count: 5},
		"a": {Count: 5},
		"c": {Count: 9},
	})
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Name != "c" {
		t.Errorf("rows[0] = %q, want c (highest count first)", rows[0].Name)
	}
	if rows[1].Name != "a" || rows[2].Name != "b" {
		t.Errorf("ties must sort by name: got %q, %q", rows[1].Name, rows[2].Name)
	}
}
