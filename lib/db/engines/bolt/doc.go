// Package bolt implements db.KVDB with a single bucket of a bbolt file.
// Several handles can share one file through different buckets, but bbolt
// locks the file, so only one process (and one open handle) at a time.
package bolt
