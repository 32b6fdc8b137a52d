// Package kvstore adapts a byte-level db.KVDB to the typed store.KeyValueDb
// interface. Keys and values are converted with codec.Codec values; decoding
// failures are returned as *codec.DecodeError and fail only the single call.
//
// A prefixed store writes every key as "<name>:" followed by the encoded key.
// Size, Clear and all scans are then limited to that prefix, which lets several
// logical stores share one Redis database, SQL table, raft shard or remote shard.
// Stores on file-backed engines get their own database and need no prefix.
//
// The conditional writes map to engine operations: Put to Swap, PutIfAbsent to
// SetIfAbsent, PutIfPresent to Has followed by Swap, and Remove to Get followed
// by Delete. They are as atomic as the engine's Swap and SetIfAbsent.
package kvstore
