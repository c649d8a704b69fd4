package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
	"github.com/mbaxter/stampede/internal/metrics"
)

func sampleSnapshot(t *testing.T) metrics.Snapshot {
	t.Helper()
	agg := metrics.NewAggregator()
	agg.Start()
	for i := 0; i < 8; i++ {
		agg.Record(behavior.Outcome{
			Category:   "chat_simple",
			StatusCode: 200,
			Latency:    time.Duration(20+i) * time.Millisecond,
		}, behavior.VerdictSuccess, "")
	}
	agg.Record(behavior.Outcome{
		Category:   "chat_simple",
		StatusCode: 500,
		Latency:    120 * time.Millisecond,
	}, behavior.VerdictFailure, "got status code 500")
	agg.Record(behavior.Outcome{
		Category:   "health_check",
		StatusCode: 200,
		Latency:    5 * time.Millisecond,
	}, behavior.VerdictSuccess, "")
	return agg.Snapshot(2 * time.Second)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSnapshot(t))
	out := buf.String()

	for _, want := range []string{
		"Load Test Results",
		"Total Requests:    10",
		"Failed:            1",
		"Failure Rate:      10.00%",
		"Duration:          2s",
		"Latency:",
		"P95:",
		"Task Breakdown:",
		"chat_simple",
		"health_check",
		"Failure Reasons:",
		"got status code 500: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	// No cancelled or expected-failure lines for a run without them.
	if strings.Contains(out, "Cancelled") || strings.Contains(out, "Expected Failures") {
		t.Errorf("report has lines for zero-valued counters\n%s", out)
	}
}

func TestPrintReportConditionalLines(t *testing.T) {
	agg := metrics.NewAggregator()
	agg.Start()
	agg.Record(behavior.Outcome{Category: "burst", StatusCode: 429, Latency: time.Millisecond},
		behavior.VerdictExpectedFailure, "expected status 429")
	agg.Record(behavior.Outcome{Category: "burst", Cancelled: true},
		behavior.VerdictSuccess, "")

	var buf bytes.Buffer
	PrintReport(&buf, agg.Snapshot(time.Second))
	out := buf.String()

	if !strings.Contains(out, "Expected Failures: 1") {
		t.Errorf("missing expected-failure line\n%s", out)
	}
	if !strings.Contains(out, "Cancelled:         1") {
		t.Errorf("missing cancelled line\n%s", out)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleSnapshot(t)); err != nil {
		t.Fatalf("PrintJSONReport returned error: %v", err)
	}

	var decoded struct {
		ElapsedMs float64 `json:"elapsed_ms"`
		Total     struct {
			Count    int64   `json:"count"`
			Failures int64   `json:"failures"`
			PerSec   float64 `json:"per_sec"`
		} `json:"total"`
		Categories map[string]json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Total.Count != 10 {
		t.Errorf("total count = %d, want 10", decoded.Total.Count)
	}
	if decoded.Total.Failures != 1 {
		t.Errorf("failures = %d, want 1", decoded.Total.Failures)
	}
	if decoded.ElapsedMs != 2000 {
		t.Errorf("elapsed_ms = %v, want 2000", decoded.ElapsedMs)
	}
	if _, ok := decoded.Categories["chat_simple"]; !ok {
		t.Errorf("categories missing chat_simple: %s", buf.String())
	}
}

func TestProgressReporter(t *testing.T) {
	agg := metrics.NewAggregator()
	agg.Start()
	agg.Record(behavior.Outcome{Category: "ping", StatusCode: 200, Latency: time.Millisecond},
		behavior.VerdictSuccess, "")

	var buf syncBuffer
	reporter := NewProgressReporter(agg, func() int { return 7 }, 10*time.Millisecond, &buf)
	reporter.Start()
	time.Sleep(50 * time.Millisecond)
	reporter.Stop()

	out := buf.String()
	if !strings.Contains(out, "Requests: 1") {
		t.Errorf("progress line missing request count: %q", out)
	}
	if !strings.Contains(out, "Users: 7") {
		t.Errorf("progress line missing user count: %q", out)
	}
	if !strings.Contains(out, "Top Task: ping") {
		t.Errorf("progress line missing top task: %q", out)
	}

	// Stop must be idempotent and further ticks must not write.
	reporter.Stop()
	before := buf.String()
	time.Sleep(30 * time.Millisecond)
	if got := buf.String(); got != before {
		t.Error("progress reporter wrote after Stop")
	}
}

// syncBuffer guards writes from the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
