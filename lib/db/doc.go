// Package db defines the byte level storage contract shared by all evkv engines.
//
// The KVDB interface is deliberately small: point reads and writes, their batched
// variants, two read-modify-write primitives (Swap, SetIfAbsent), prefix scans
// and an explicit persistence split between Flush (best effort) and ForceFlush
// (durable). Typed stores (lib/store/kvstore) translate typed calls into these
// byte calls, so an engine only has to implement this interface to be usable as
// a backend for every logical store.
//
// Feature Flags:
//
// Engines advertise guarantees beyond the base contract through SupportsFeature.
// The most relevant ones are FeatureOrderedScan (prefix scans visit keys in byte
// order), FeatureSnapshotScan (a scan sees one consistent snapshot) and
// FeatureAtomicBatch (SetMany/DeleteMany are all-or-nothing). Callers must not
// rely on a guarantee the engine does not advertise.
//
// Engines without a native batch or swap build those methods from the loop
// helpers in fallback.go. They are correct but not atomic.
//
// Related Packages:
//
//   - engines/*: the engine implementations (leveldb is the reference engine)
//   - cache: an LRU read cache that decorates any KVDB
//   - testing: RunKVDBTests, the conformance suite every engine runs, and RunKVDBBenchmarks
//   - util: hashing, prefix ranges and size statistics
package db
