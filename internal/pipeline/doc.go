// Package pipeline implements the write path between client sessions and the
// snapshot file.
//
// Three goroutines cooperate:
//
//   - timer: ticks every persistence interval and posts a coalescing signal
//     to the writer.
//   - writer: on each signal, if the store changed since the last flush,
//     copies the map together with its generation, saves it and records that
//     generation as flushed, then wakes the applier.
//   - applier: pops an intent, waits until the previous generation has been
//     flushed, then merges it together with everything else queued meanwhile
//     as one new generation.
//
// The store therefore never runs more than one generation ahead of the file.
// A failed save leaves the store dirty and the next tick retries it.
//
// # Shutdown
//
// Interrupt closes the intent queue and the stop channel. The applier stops
// waiting for flushes, merges every intent still queued and exits; the writer
// notices, performs one last flush and exits. Stop joins timer, applier and
// writer in that order, so every acknowledged set reaches the file.
package pipeline
