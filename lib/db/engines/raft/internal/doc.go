// Package internal holds the raft log format of the raft engine.
//
// Commands are written to the raft log and applied on every replica:
//
//   - 1 byte: Command type
//   - 4 bytes: Key count, then per key 4 bytes length + data
//   - 4 bytes: Value count, then per value 4 bytes length + data
//
// All integers are big endian. Queries are executed on the local replica and
// are never serialized. Swap and SetIfAbsent return their (value, found)
// result as EncodeFound bytes in sm.Result.Data.
package internal
