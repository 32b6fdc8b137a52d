// Package util provides helpers shared by the db.KVDB engines and the layers above them.
//
// The package contains:
//   - statistics: distribution metrics and a SizeHistogram for tracking byte sizes
//   - functions: seeded XXH3 hashing, prefix range bounds and byte slice copies
package util
