// Package transport defines how RPC frames travel between a client holding a
// remote db.KVDB and the server hosting its shard.
//
// Every request carries the id of the shard it addresses; the server side
// hands shard id and payload to a ServerHandleFunc and sends back whatever it
// returns. Transports do not look into the payload, serialization is done by
// the serializer package.
//
// Implementations live in the sub packages: tcp and unix (both built on the
// framed stream transport in base) and http.
package transport
