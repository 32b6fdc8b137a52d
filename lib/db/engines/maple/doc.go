// Package maple implements a sharded in-memory db.KVDB with optional
// snapshot persistence and fixed-width keys.
//
// Key Components:
//
//   - mapleImpl: the database. Keys are routed to shards by their seeded XXH3
//     hash (right-shifted by 7 bits to use the higher-quality bits), each shard
//     is a lock-free xsync map. Swap and SetIfAbsent are atomic per key.
//
//   - Fixed-width keys: with DBOptions.KeyWidth set, every key must have exactly
//     that many bytes. The factory enables this for stores whose key codec has a
//     FIXED size, mirroring fixed-entry-size maps on disk.
//
//   - Snapshots: with DBOptions.Path set, the database loads the file on open
//     and writes it on ForceFlush and Close (via a temporary file and rename).
//     The file ends with an XXH3 checksum; a corrupt file fails the open with
//     ErrCorruptSnapshot. Snapshots are fuzzy: writes racing with a snapshot
//     may or may not be included.
//
// Scans are unordered and not isolated, maple does not advertise
// FeatureOrderedScan or FeatureSnapshotScan.
package maple
