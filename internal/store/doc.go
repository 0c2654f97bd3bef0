// Package store holds the authoritative key/value map of the server together
// with per-key read and write counters.
//
// Values are guarded by a sync.RWMutex: any number of Get calls run in
// parallel, while MergeBatch and Snapshot take the lock exclusively. Counters
// live behind a second RWMutex so that recording a read never excludes other
// readers of the value map. When both locks are needed the value lock is
// always taken first.
//
// Every applied batch bumps a generation number. The persistence writer
// remembers the generation it last wrote; the store is dirty while the two
// differ.
//
// Nothing is ever deleted: keys and their counters live for the whole process.
package store
