// Package output renders run statistics as human-readable or JSON reports
// and live progress lines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mbaxter/stampede/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, snap metrics.Snapshot) {
	total := snap.Total
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Total Requests:    %d\n", total.Count)
	fmt.Fprintf(w, "Failed:            %d\n", total.Failures)
	if total.ExpectedFailures > 0 {
		fmt.Fprintf(w, "Expected Failures: %d\n", total.ExpectedFailures)
	}
	if total.Cancelled > 0 {
		fmt.Fprintf(w, "Cancelled:         %d\n", total.Cancelled)
	}
	fmt.Fprintf(w, "Failure Rate:      %.2f%%\n", total.FailureRate*100)
	fmt.Fprintf(w, "Duration:          %s\n", snap.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", total.PerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %.1fms\n", total.MinLatencyMs)
	fmt.Fprintf(w, "  Max:             %.1fms\n", total.MaxLatencyMs)
	fmt.Fprintf(w, "  Mean:            %.1fms\n", total.AvgLatencyMs)
	fmt.Fprintf(w, "  P50:             %.1fms\n", total.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.1fms\n", total.P90LatencyMs)
	fmt.Fprintf(w, "  P95:             %.1fms\n", total.P95LatencyMs)
	fmt.Fprintf(w, "  P99:             %.1fms\n", total.P99LatencyMs)

	rows := metrics.SortedRows(snap.Categories)
	if len(rows) > 0 {
		fmt.Fprintln(w, "\nTask Breakdown:")
		for _, row := range rows {
			share := 0.0
			if total.Count > 0 {
				share = (float64(row.Rollup.Count) / float64(total.Count)) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), failures=%d, rps=%.2f, p95=%.1fms, p99=%.1fms\n",
				row.Name,
				row.Rollup.Count,
				share,
				row.Rollup.Failures,
				row.Rollup.PerSec,
				row.Rollup.P95LatencyMs,
				row.Rollup.P99LatencyMs,
			)
		}
	}

	reasons := metrics.SortedReasons(total.Reasons)
	if len(reasons) > 0 {
		fmt.Fprintln(w, "\nFailure Reasons:")
		for _, row := range reasons {
			fmt.Fprintf(w, "  %s: %d\n", row.Reason, row.Count)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, snap metrics.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
