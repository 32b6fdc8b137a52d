// Package raft implements a replicated db.KVDB using the Dragonboat RAFT
// consensus library. Every replica of a shard holds its own db.KVDB (any
// engine), and all writes go through the raft log so the replicas apply them
// in the same order.
//
// Architecture:
//
//   - raftDB: the db.KVDB handed to callers. Writes are serialized into
//     internal.Command values and proposed with SyncPropose, reads use
//     SyncRead (linearizable) and GetInfo uses StaleRead.
//
//   - KVStateMachine: a Dragonboat IConcurrentStateMachine. Update applies
//     commands to the replica database and returns the result code (and, for
//     Swap and SetIfAbsent, the previous value) in sm.Result. Lookup serves
//     queries locally.
//
//   - Cluster: owns the NodeHost of the process, starts shards and waits for
//     a leader.
//
// Atomicity:
//
//	Commands are applied one at a time per replica, so Swap, SetIfAbsent and
//	SetMany are atomic with respect to other commands even when the replica
//	engine itself only offers per-key atomicity.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy, the operation is retried after
//	Timeout/10, up to Retries attempts. A command failing on the replica is
//	returned as *CommandError, a closed replica database as db.ErrClosed.
//
// Snapshots:
//
//	Snapshots are fuzzy: SaveSnapshot scans the replica database while commands
//	keep being applied. Recovery clears the database, loads the snapshot and the
//	raft log entries after the snapshot index are replayed on top, which yields
//	the committed state.
//
// Usage:
//
//	cluster, err := raft.NewCluster(cfg, func(shardID, replicaID uint64) (db.KVDB, error) {
//	    return maple.NewMapleDB(nil)
//	})
//	if err != nil { ... }
//	if err := cluster.StartShard(100); err != nil { ... }
//	if err := cluster.WaitReady(ctx, 100); err != nil { ... }
//	kv := cluster.Open(100, raft.Options{Timeout: 5 * time.Second})
//
// Deploy with an odd number of replicas (3, 5, 7). With 2N+1 replicas the shard
// tolerates N failures; without a majority no write can be committed.
package raft
