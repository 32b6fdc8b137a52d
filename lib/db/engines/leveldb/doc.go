// Package leveldb is the reference db.KVDB engine, an ordered byte-array store
// backed by goleveldb.
//
// Every mutating call is applied as one atomic write batch, reads and prefix
// scans run against an implicit snapshot and visit keys in byte order. Swap and
// SetIfAbsent are serialized with all other writes of the handle. An empty
// Options.Path opens an in-memory database, which is what the tests use.
//
// ForceFlush fsyncs the journal and compacts the memtable, Flush is a no-op
// because goleveldb journals every write.
package leveldb
