// Package common holds the types shared by the RPC client, server and
// transports.
//
//   - Message: the request and response of every operation of the db.KVDB
//     contract. Which fields are set depends on the MessageType.
//
//   - Error and RetCode: failures reported by the server. A client turns an
//     error response into an *Error; RetCClosed unwraps to db.ErrClosed.
//
//   - ServerConfig and ClientConfig: the settings of `evkv serve` and of
//     remote stores, including transport, serializer and socket options.
//     ParseShards reads shard lists like "100=maple,200=raft(leveldb)".
//
//   - InitLoggers: installs a zap backed logger factory for all dragonboat
//     style loggers of the module and sets their level.
package common
