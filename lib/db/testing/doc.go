// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: the conformance suite every engine must pass (point operations,
//     batches, swaps, prefix scans, close semantics and a concurrent workload)
//   - benchmark: throughput benchmarks for the common operations
//
// Tests that depend on an optional guarantee (e.g. ordered scans) are skipped
// for engines that do not advertise the corresponding db.Feature.
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
