// Package pebble implements db.KVDB on top of the pebble LSM store.
//
// Batches commit atomically, iterators read an implicit snapshot and GetMany
// uses an explicit one. DeletePrefix writes a single range tombstone. Flush
// schedules a memtable flush, ForceFlush waits for it.
package pebble
