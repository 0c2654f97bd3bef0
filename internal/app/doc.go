// Package app wires the server together and owns its lifecycle.
//
// Startup order: load or create the snapshot file, seed the store, open the
// listening socket, then (in Run) start the write pipeline, the statistics
// reporter and the optional admin API before accepting clients.
//
// Shutdown runs once, whether triggered by context cancellation, a call to
// Shutdown or a listener failure. It stops intake first (listener and open
// sessions), then interrupts the pipeline so no goroutine can stay blocked,
// and joins timer, statistics, applier and writer in that order. The writer
// is last so that intents the applier drained during shutdown are flushed.
package app
