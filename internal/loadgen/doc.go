// Package loadgen drives concurrent client sessions against the server.
//
// A Runner takes a Profile (see GetProfile and ListProfiles) and runs one
// session per client on a worker pool. Each session owns a single
// connection, issues its share of requests and reconnects after a
// connection failure. Results are collected in a metrics.Snapshot plus
// per-client get/set counts.
package loadgen
