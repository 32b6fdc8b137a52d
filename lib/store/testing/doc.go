// Package testing provides a conformance suite for store.KeyValueDb
// implementations. It is the typed counterpart of lib/db/testing and checks the
// put/putIfAbsent/remove semantics, bulk operations with empty inputs and missing
// keys, isolation between store names and the behaviour of closed stores.
//
// Usage:
//
//	func Test(t *testing.T) {
//		stest.RunKeyValueDbTests(t, "LevelDB", func(t *testing.T) stest.Opener {
//			shared := newSharedDB(t)
//			return func(name string) store.KeyValueDb[string, int64] {
//				return kvstore.New(shared, name, codec.String, codec.Int64, true)
//			}
//		})
//	}
package testing
