// Package redis implements db.KVDB on a redis server using redigo.
//
// Batches map to MSET/MGET/DEL, Swap to GETSET and SetIfAbsent to a small Lua
// script, so all of them are atomic on the server. Prefix scans use
// SCAN MATCH with the glob metacharacters of the prefix escaped; scans are
// neither ordered nor isolated.
package redis
