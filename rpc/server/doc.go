// Package server implements the evkv RPC server. It hosts a set of shards,
// each backed by a db.KVDB, and answers requests of the rpc/client package
// over one of the transports.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that processes one request against a db.KVDB.
//
//   - NewKVDBServerAdapter: the adapter translating every message type to the
//     db.KVDB method of the same name. Failures are reported with a RetCode,
//     unknown message types with RetCUnsupportedOperation.
//
//   - NewRPCServer / New: create a server for a common.ServerConfig, either with
//     an explicit transport and serializer or with the ones named in the config.
//
// Shards are configured as "<id>=<engine>", e.g.
//
//	100=maple,200=pebble,300=raft(leveldb)
//
// Local shards open their engine below ServerConfig.DataDir (in memory if the
// engine supports it and no directory is set). Replicated shards run on one
// dragonboat node host per server, every replica stores its data in its own
// local engine. The RAFT parameters (RTTMillisecond, SnapshotEntries,
// CompactionOverhead, DataDir, ReplicaID and ClusterMembers) are only needed
// if at least one shard is replicated.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Shards, _ = common.ParseShards("1=maple,2=leveldb")
//
//	s, err := server.New(config)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	go s.Serve()
//	defer s.Close()
//
// Every request updates the evkv_rpc_requests_total, evkv_rpc_errors_total and
// evkv_rpc_request_duration_seconds metrics of the default VictoriaMetrics set.
package server
