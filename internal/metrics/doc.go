// Package metrics provides the shared statistics aggregator for a load run.
//
// Every virtual user records its request outcomes into one [Aggregator]; the
// aggregator keys entries by statistics category (typically the task name)
// and keeps an HdrHistogram latency distribution per category plus one for
// the run total.
//
//	agg := metrics.NewAggregator()
//	agg.Start() // mark run start for accurate throughput
//
//	agg.Record(outcome, verdict, reason)
//
//	snap := agg.Snapshot(0)
//	fmt.Println(snap.Total.Count, snap.Total.P95LatencyMs)
//
// # Thread safety
//
// Record is safe under arbitrary interleaving from concurrent writers: the
// category map is guarded by a read-write lock and each entry by its own
// mutex, so no outcome is lost or double-counted and writers for different
// categories do not contend.
//
// # Verdicts
//
// Failures count toward the failure rate; expected failures and cancelled
// outcomes count toward totals only. Reset returns the aggregator to zero so
// state never leaks across runs.
package metrics
