// Package rpc serves key-value engines over the network. It is the
// communication layer between a client holding a db.KVDB handle and the
// server hosting the engine of a shard.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB, CBOR)
//     for converting between Message objects and byte arrays.
//
//   - client: A db.KVDB whose operations are executed by a remote shard, used as
//     the remote backend of the store factory.
//
//   - server: The RPC server that hosts local and replicated shards and answers
//     requests through the KVDB adapter.
package rpc
