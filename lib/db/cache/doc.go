// Package cache wraps a db.KVDB with an LRU read cache (hashicorp/golang-lru).
//
// Only present values are cached. Every write invalidates the keys it touches
// (DeletePrefix drops the whole cache), and a read started before a write
// never fills the cache with its result, so readers see their own and all
// completed writes. Scan and Count always go to the wrapped database.
package cache
