// Package badger implements db.KVDB on top of badger v2.
//
// Every mutating call runs in one read-write transaction; read-modify-write
// operations are retried on badger.ErrConflict, which makes Swap and
// SetIfAbsent atomic. On-disk databases run a periodic value log GC.
package badger
