// Package stats collects request counters and prints the periodic
// statistics report.
//
// Counters are lock-free atomics. The recent counters are exchanged to zero
// each time a report is collected; lifetime counters only grow. Per-key read
// and write counts come from the store's own counter map.
//
// The Reporter is a pure consumer: a failed write to its output is logged
// and the next interval tries again.
package stats
