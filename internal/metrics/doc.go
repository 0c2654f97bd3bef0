// Package metrics collects client-side request metrics for load runs.
//
// Counters are atomic and safe for concurrent use by many workers. Latency
// samples are capped (see NewWithSamples) and used for the P99 estimate.
//
//	m := metrics.New()
//	start := time.Now()
//	// ... issue a get ...
//	m.RecordSuccess(metrics.OpGet, time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("gets=%d sets=%d p99=%v\n", snap.Gets, snap.Sets, snap.P99Latency)
package metrics
